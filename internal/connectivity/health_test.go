package connectivity

import "testing"

func TestMergeIsConservative(t *testing.T) {
	if Merge(Healthy, Unhealthy) != Unhealthy {
		t.Fatal("unhealthy must dominate healthy")
	}
	if Merge(Healthy, Unknown) != Unknown {
		t.Fatal("unknown must dominate healthy")
	}
	if Merge(Unhealthy, Unknown) != Unhealthy {
		t.Fatal("unhealthy must dominate unknown")
	}
	if Merge(Healthy, Healthy) != Healthy {
		t.Fatal("healthy+healthy must stay healthy")
	}
}

func TestConnectivityStateRequiresBothStreamsHealthy(t *testing.T) {
	s := NewConnectivityState()
	if s.Health() != Unknown {
		t.Fatal("fresh state must default to unknown")
	}

	s.Market = Healthy
	if s.Health() != Unknown {
		t.Fatal("one healthy stream is not enough while the other is unknown")
	}

	s.Account = Healthy
	if s.Health() != Healthy {
		t.Fatal("both streams healthy must report healthy")
	}

	s.Account = Unhealthy
	if s.Health() != Unhealthy {
		t.Fatal("one unhealthy stream must report unhealthy")
	}
}

func TestConnectivityStatesGlobalIgnoresUnregisteredExchanges(t *testing.T) {
	c := NewConnectivityStates()
	if c.Global() != Unknown {
		t.Fatal("no registered exchanges must report unknown")
	}

	c.UpdateMarket(0, Healthy)
	c.UpdateAccount(0, Healthy)
	if c.Global() != Healthy {
		t.Fatal("single healthy exchange must report global healthy")
	}

	c.UpdateMarket(1, Unhealthy)
	c.UpdateAccount(1, Unknown)
	if c.Global() != Unhealthy {
		t.Fatal("any unhealthy exchange must drag global to unhealthy")
	}
}

func TestConnectivityStatesForSeedsAllConfiguredExchanges(t *testing.T) {
	c := NewConnectivityStatesFor([]int{0, 1, 2})
	if c.Global() != Unknown {
		t.Fatal("seeded-but-silent exchanges must keep global unhealthy/unknown, not Healthy")
	}

	c.UpdateMarket(0, Healthy)
	c.UpdateAccount(0, Healthy)
	if c.Global() != Unknown {
		t.Fatal("one exchange reporting healthy must not mask the other two never having reported")
	}

	c.UpdateMarket(1, Healthy)
	c.UpdateAccount(1, Healthy)
	c.UpdateMarket(2, Healthy)
	c.UpdateAccount(2, Healthy)
	if c.Global() != Healthy {
		t.Fatal("global must be healthy once every configured exchange is")
	}
}
