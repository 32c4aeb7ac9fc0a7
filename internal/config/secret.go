package config

// Secret is a string type that redacts itself when printed, marshaled to
// JSON, or marshaled to YAML, so a Config accidentally logged never leaks
// exchange credentials.
type Secret string

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

// MarshalJSON ensures secrets are redacted when marshaled to JSON.
func (s Secret) MarshalJSON() ([]byte, error) {
	return []byte(`"[REDACTED]"`), nil
}

// MarshalYAML ensures secrets are redacted when marshaled to YAML, which is
// how Config.String renders the whole document.
func (s Secret) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}
