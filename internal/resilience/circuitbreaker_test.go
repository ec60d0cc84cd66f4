package resilience

import (
	"errors"
	"testing"
	"time"
)

var errTest = errors.New("test error")

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test"})
	if cb.Name() != "test" {
		t.Errorf("Name = %q", cb.Name())
	}
	if cb.maxFailures != 5 {
		t.Errorf("maxFailures = %d, want 5", cb.maxFailures)
	}
	if cb.resetTimeout != 30*time.Second {
		t.Errorf("resetTimeout = %v, want 30s", cb.resetTimeout)
	}
	if cb.halfOpenMax != 3 {
		t.Errorf("halfOpenMax = %d, want 3", cb.halfOpenMax)
	}
	if cb.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", cb.State())
	}
}

// step is one call through a breaker: ok or failing, optionally after a
// pause, and the state expected afterwards.
type step struct {
	fail      bool
	wait      time.Duration
	wantErr   error
	wantState State
}

func TestCircuitBreaker_Transitions(t *testing.T) {
	uploadFailed := errors.New("upload: status 502")
	tests := []struct {
		name  string
		cfg   CircuitBreakerConfig
		steps []step
	}{
		{
			name: "closed passes calls through",
			cfg:  CircuitBreakerConfig{MaxFailures: 3},
			steps: []step{
				{wantState: StateClosed},
				{fail: true, wantErr: uploadFailed, wantState: StateClosed},
			},
		},
		{
			name: "consecutive failures open the circuit",
			cfg:  CircuitBreakerConfig{MaxFailures: 3, ResetTimeout: time.Hour},
			steps: []step{
				{fail: true, wantErr: uploadFailed, wantState: StateClosed},
				{fail: true, wantErr: uploadFailed, wantState: StateClosed},
				{fail: true, wantErr: uploadFailed, wantState: StateOpen},
				{wantErr: ErrCircuitOpen, wantState: StateOpen},
			},
		},
		{
			name: "success resets the failure count",
			cfg:  CircuitBreakerConfig{MaxFailures: 3},
			steps: []step{
				{fail: true, wantErr: uploadFailed, wantState: StateClosed},
				{fail: true, wantErr: uploadFailed, wantState: StateClosed},
				{wantState: StateClosed},
				{fail: true, wantErr: uploadFailed, wantState: StateClosed},
				{fail: true, wantErr: uploadFailed, wantState: StateClosed},
			},
		},
		{
			name: "successful probes close the circuit",
			cfg:  CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: 10 * time.Millisecond, HalfOpenMax: 2},
			steps: []step{
				{fail: true, wantErr: uploadFailed, wantState: StateClosed},
				{fail: true, wantErr: uploadFailed, wantState: StateOpen},
				{wait: 15 * time.Millisecond, wantState: StateHalfOpen},
				{wantState: StateClosed},
			},
		},
		{
			name: "failed probe reopens the circuit",
			cfg:  CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: 10 * time.Millisecond, HalfOpenMax: 3},
			steps: []step{
				{fail: true, wantErr: uploadFailed, wantState: StateClosed},
				{fail: true, wantErr: uploadFailed, wantState: StateOpen},
				{wait: 15 * time.Millisecond, fail: true, wantErr: uploadFailed, wantState: StateOpen},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.Name = "upload"
			cb := NewCircuitBreaker(tt.cfg)
			for i, st := range tt.steps {
				time.Sleep(st.wait)
				err := cb.Execute(func() error {
					if st.fail {
						return uploadFailed
					}
					return nil
				})
				if !errors.Is(err, st.wantErr) {
					t.Fatalf("step %d: err = %v, want %v", i, err, st.wantErr)
				}
				cb.mu.Lock()
				got := cb.state
				cb.mu.Unlock()
				if got != st.wantState {
					t.Fatalf("step %d: state = %v, want %v", i, got, st.wantState)
				}
			}
		})
	}
}

func TestCircuitBreaker_OpenReportsHalfOpenAfterTimeout(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "deepgram", MaxFailures: 1, ResetTimeout: 10 * time.Millisecond})
	_ = cb.Execute(func() error { return errTest })
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}
	time.Sleep(15 * time.Millisecond)
	if cb.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open", cb.State())
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "upload", MaxFailures: 1, ResetTimeout: time.Hour})
	_ = cb.Execute(func() error { return errTest })
	cb.Reset()
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed after reset", cb.State())
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("Execute after reset: %v", err)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestCircuitBreaker_HalfOpenProbeBudget(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "upload",
		MaxFailures:  1,
		ResetTimeout: 10 * time.Millisecond,
		HalfOpenMax:  1,
	})
	_ = cb.Execute(func() error { return errTest })
	time.Sleep(15 * time.Millisecond)

	started := make(chan struct{})
	release := make(chan struct{})
	probeDone := make(chan error, 1)
	go func() {
		probeDone <- cb.Execute(func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("call during probe = %v, want ErrCircuitOpen", err)
	}
	close(release)
	if err := <-probeDone; err != nil {
		t.Fatalf("probe: %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	type change struct{ from, to State }
	var got []change
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "stt",
		MaxFailures:  2,
		ResetTimeout: 10 * time.Millisecond,
		HalfOpenMax:  1,
		OnStateChange: func(name string, from, to State) {
			if name != "stt" {
				t.Errorf("name = %q", name)
			}
			got = append(got, change{from, to})
		},
	})

	_ = cb.Execute(func() error { return errTest })
	_ = cb.Execute(func() error { return errTest })
	time.Sleep(15 * time.Millisecond)
	_ = cb.Execute(func() error { return nil })
	cb.Reset()

	want := []change{
		{StateClosed, StateOpen},
		{StateOpen, StateHalfOpen},
		{StateHalfOpen, StateClosed},
	}
	if len(got) != len(want) {
		t.Fatalf("changes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("changes = %v, want %v", got, want)
		}
	}
}
