package httpc

import (
	"testing"
	"time"
)

func TestNewClient(t *testing.T) {
	c := NewClient(0)
	if c.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", c.Timeout, DefaultTimeout)
	}
	if c.Transport == nil {
		t.Error("expected explicit transport")
	}

	c = NewClient(5 * time.Second)
	if c.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", c.Timeout)
	}
}

func TestWithTimeout(t *testing.T) {
	base := NewClient(time.Second)
	cp := WithTimeout(base, 3*time.Second)
	if cp == base {
		t.Fatal("expected a copy")
	}
	if cp.Timeout != 3*time.Second {
		t.Errorf("Timeout = %v, want 3s", cp.Timeout)
	}
	if base.Timeout != time.Second {
		t.Error("base client must not be modified")
	}
	if cp.Transport != base.Transport {
		t.Error("transport should be shared")
	}

	if got := WithTimeout(nil, 0); got.Timeout != DefaultTimeout {
		t.Errorf("nil client Timeout = %v", got.Timeout)
	}
}
