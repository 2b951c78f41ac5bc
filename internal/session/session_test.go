package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"
)

var errNetwork = errors.New("socket closed")

// fakeTransport is a scripted Transport that records every call.
type fakeTransport struct {
	events []string

	// polls is returned in order by Loop; once exhausted Loop returns OK().
	polls     []PollResult
	pollCount int
	onPoll    func(n int)

	connectErr    error
	reconnectErr  error
	resetErr      error
	subscribeErr  map[string]error
	unsubErrs     map[string][]error
	disconnectErr error

	resets     int
	reconnects int
	nextID     uint16
}

func (f *fakeTransport) Connect(context.Context) error {
	f.events = append(f.events, "connect")
	return f.connectErr
}

func (f *fakeTransport) Reconnect(context.Context) error {
	f.reconnects++
	f.events = append(f.events, "reconnect")
	return f.reconnectErr
}

func (f *fakeTransport) ResetNetwork(context.Context) error {
	f.resets++
	f.events = append(f.events, "reset")
	return f.resetErr
}

func (f *fakeTransport) Subscribe(_ context.Context, topic string) (byte, error) {
	f.events = append(f.events, "subscribe:"+topic)
	if err := f.subscribeErr[topic]; err != nil {
		return 0, err
	}
	return 1, nil
}

func (f *fakeTransport) Unsubscribe(_ context.Context, topic string) (uint16, error) {
	f.events = append(f.events, "unsubscribe:"+topic)
	if errs := f.unsubErrs[topic]; len(errs) > 0 {
		err := errs[0]
		f.unsubErrs[topic] = errs[1:]
		if err != nil {
			return 0, err
		}
	}
	f.nextID++
	return f.nextID, nil
}

func (f *fakeTransport) Loop(context.Context) PollResult {
	f.pollCount++
	f.events = append(f.events, "loop")
	if f.onPoll != nil {
		f.onPoll(f.pollCount)
	}
	if f.pollCount <= len(f.polls) {
		return f.polls[f.pollCount-1]
	}
	return OK()
}

func (f *fakeTransport) Disconnect(context.Context) error {
	f.events = append(f.events, "disconnect")
	return f.disconnectErr
}

// count returns how many recorded events equal name.
func (f *fakeTransport) count(name string) int {
	n := 0
	for _, e := range f.events {
		if e == name {
			n++
		}
	}
	return n
}

// with returns the events that start with prefix, in order.
func (f *fakeTransport) with(prefix string) []string {
	var out []string
	for _, e := range f.events {
		if strings.HasPrefix(e, prefix) {
			out = append(out, strings.TrimPrefix(e, prefix))
		}
	}
	return out
}

// after returns the events recorded after the first occurrence of name.
func (f *fakeTransport) after(name string) []string {
	i := slices.Index(f.events, name)
	if i < 0 {
		return nil
	}
	return f.events[i+1:]
}

// noSleep returns immediately, reporting cancellation like a timer would.
func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

var forecastTopics = []string{"current", "forecast_today", "forecast_tomorrow"}

func newTestSession(t *testing.T, ft *fakeTransport, cfg Config) *Session {
	t.Helper()
	if cfg.Topics == nil {
		cfg.Topics = forecastTopics
	}
	if cfg.Sleep == nil {
		cfg.Sleep = noSleep
	}
	s, err := New(ft, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

// cancelAt cancels ctx when the n-th poll is made.
func cancelAt(n int, cancel context.CancelFunc) func(int) {
	return func(got int) {
		if got == n {
			cancel()
		}
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name      string
		transport Transport
		topics    []string
		wantErr   error
	}{
		{name: "valid", transport: &fakeTransport{}, topics: forecastTopics},
		{name: "nil transport", transport: nil, topics: forecastTopics, wantErr: ErrNilTransport},
		{name: "no topics", transport: &fakeTransport{}, topics: nil, wantErr: ErrNoTopics},
		{name: "empty topic", transport: &fakeTransport{}, topics: []string{"a", ""}, wantErr: ErrInvalidTopic},
		{name: "duplicate topic", transport: &fakeTransport{}, topics: []string{"a", "b", "a"}, wantErr: ErrInvalidTopic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.transport, Config{Topics: tt.topics})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("New() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if s.State() != StateDisconnected {
				t.Errorf("State() = %v, want disconnected", s.State())
			}
			if s.drainPolls != DefaultDrainPolls || s.pollInterval != DefaultPollInterval {
				t.Errorf("defaults = (%d, %v), want (%d, %v)",
					s.drainPolls, s.pollInterval, DefaultDrainPolls, DefaultPollInterval)
			}
		})
	}
}

func TestNew_CopiesTopics(t *testing.T) {
	topics := []string{"a", "b"}
	s, err := New(&fakeTransport{}, Config{Topics: topics})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	topics[0] = "mutated"
	if got := s.Topics(); got[0] != "a" {
		t.Errorf("Topics()[0] = %q, want %q", got[0], "a")
	}
}

func TestSession_ExampleScenario(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ft := &fakeTransport{
		polls:  []PollResult{OK(), Retryable(errNetwork)},
		onPoll: cancelAt(4, cancel),
	}
	var unsubscribed []string
	s := newTestSession(t, ft, Config{
		Callbacks: Callbacks{
			OnUnsubscribe: func(_ *Session, _ any, topic string, _ uint16) {
				unsubscribed = append(unsubscribed, topic)
			},
		},
	})

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if ft.resets != 1 || ft.reconnects != 1 {
		t.Errorf("resets, reconnects = %d, %d; want 1, 1", ft.resets, ft.reconnects)
	}
	if got := ft.with("unsubscribe:"); !slices.Equal(got, forecastTopics) {
		t.Errorf("unsubscribe attempts = %v, want %v", got, forecastTopics)
	}
	if !slices.Equal(unsubscribed, forecastTopics) {
		t.Errorf("OnUnsubscribe topics = %v, want %v", unsubscribed, forecastTopics)
	}

	// Polls after the last unsubscribe are the drain.
	tail := ft.after("unsubscribe:forecast_tomorrow")
	want := []string{"loop", "loop", "loop", "disconnect"}
	if !slices.Equal(tail, want) {
		t.Errorf("events after unsubscribe = %v, want %v", tail, want)
	}

	// The reconnect restores the subscription set.
	if got := len(ft.with("subscribe:")); got != 2*len(forecastTopics) {
		t.Errorf("subscribe calls = %d, want %d", got, 2*len(forecastTopics))
	}
	if s.State() != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", s.State())
	}
	if got := s.Stats().Reconnects; got != 1 {
		t.Errorf("Stats().Reconnects = %d, want 1", got)
	}
}

func TestSession_SubscribeUnsubscribeSymmetry(t *testing.T) {
	tests := []struct {
		name  string
		polls []PollResult
	}{
		{name: "no errors", polls: nil},
		{name: "one retryable", polls: []PollResult{Retryable(errNetwork)}},
		{
			name: "many retryables",
			polls: []PollResult{
				Retryable(errNetwork), OK(), Retryable(errNetwork), Retryable(errNetwork), OK(),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			ft := &fakeTransport{polls: tt.polls, onPoll: cancelAt(len(tt.polls)+1, cancel)}
			var subscribed, unsubscribed []string
			s := newTestSession(t, ft, Config{
				Callbacks: Callbacks{
					OnSubscribe: func(_ *Session, _ any, topic string, _ byte) {
						subscribed = append(subscribed, topic)
					},
					OnUnsubscribe: func(_ *Session, _ any, topic string, _ uint16) {
						unsubscribed = append(unsubscribed, topic)
					},
				},
			})

			if err := s.Run(ctx); err != nil {
				t.Fatalf("Run() error = %v", err)
			}

			// The first len(topics) subscriptions are the initial connect.
			initial := subscribed[:len(forecastTopics)]
			if !slices.Equal(initial, unsubscribed) {
				t.Errorf("unsubscribed = %v, want %v", unsubscribed, initial)
			}
		})
	}
}

func TestSession_RetryNeverGivesUp(t *testing.T) {
	const failures = 1000

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	polls := make([]PollResult, failures)
	for i := range polls {
		polls[i] = Retryable(fmt.Errorf("attempt %d: %w", i, errNetwork))
	}
	ft := &fakeTransport{polls: polls, onPoll: cancelAt(failures+1, cancel)}
	s := newTestSession(t, ft, Config{})

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if ft.reconnects != failures || ft.resets != failures {
		t.Errorf("reconnects, resets = %d, %d; want %d each", ft.reconnects, ft.resets, failures)
	}
	if got := s.Stats().Reconnects; got != failures {
		t.Errorf("Stats().Reconnects = %d, want %d", got, failures)
	}
}

func TestShutdown_UnsubscribeFaultIsolation(t *testing.T) {
	ft := &fakeTransport{
		unsubErrs: map[string][]error{
			"current": {errNetwork, errNetwork},
		},
	}
	var unsubscribed []string
	s := newTestSession(t, ft, Config{
		Callbacks: Callbacks{
			OnUnsubscribe: func(_ *Session, _ any, topic string, _ uint16) {
				unsubscribed = append(unsubscribed, topic)
			},
		},
	})
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	wantAttempts := []string{"current", "current", "forecast_today", "forecast_tomorrow"}
	if got := ft.with("unsubscribe:"); !slices.Equal(got, wantAttempts) {
		t.Errorf("unsubscribe attempts = %v, want %v", got, wantAttempts)
	}
	if want := []string{"forecast_today", "forecast_tomorrow"}; !slices.Equal(unsubscribed, want) {
		t.Errorf("OnUnsubscribe topics = %v, want %v", unsubscribed, want)
	}
	if ft.reconnects != 1 {
		t.Errorf("reconnects = %d, want 1", ft.reconnects)
	}
	if ft.resets != 0 {
		t.Errorf("resets = %d, want 0 during shutdown", ft.resets)
	}
	if got := s.Stats().FailedUnsubscribes; got != 1 {
		t.Errorf("Stats().FailedUnsubscribes = %d, want 1", got)
	}
	if ft.count("disconnect") != 1 {
		t.Error("expected disconnect after failed unsubscribe")
	}
}

func TestShutdown_FallbackReconnectFailure(t *testing.T) {
	ft := &fakeTransport{
		unsubErrs: map[string][]error{
			"current":        {errNetwork},
			"forecast_today": {errNetwork},
		},
	}
	s := newTestSession(t, ft, Config{})
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	ft.reconnectErr = errNetwork

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	// Reconnect failed, so the retry never happens; every topic is still tried.
	want := []string{"current", "forecast_today", "forecast_tomorrow"}
	if got := ft.with("unsubscribe:"); !slices.Equal(got, want) {
		t.Errorf("unsubscribe attempts = %v, want %v", got, want)
	}
	if got := s.Stats().FailedUnsubscribes; got != 2 {
		t.Errorf("Stats().FailedUnsubscribes = %d, want 2", got)
	}
}

func TestShutdown_FallbackSucceeds(t *testing.T) {
	ft := &fakeTransport{
		unsubErrs: map[string][]error{"forecast_today": {errNetwork}},
	}
	var connects, messages int
	var ids []uint16
	s := newTestSession(t, ft, Config{
		Callbacks: Callbacks{
			OnConnect: func(*Session) { connects++ },
			OnMessage: func(*Session, string, string) { messages++ },
			OnUnsubscribe: func(_ *Session, _ any, _ string, id uint16) {
				ids = append(ids, id)
			},
		},
	})
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	ft.polls = []PollResult{OK(Message{Topic: "late", Payload: []byte("42")})}

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	if connects != 2 {
		t.Errorf("OnConnect calls = %d, want 2", connects)
	}
	if messages != 1 {
		t.Errorf("OnMessage calls = %d, want 1 from the fallback poll", messages)
	}
	if !slices.Equal(ids, []uint16{1, 2, 3}) {
		t.Errorf("packet ids = %v, want [1 2 3]", ids)
	}
	// No resubscription while draining.
	if got := len(ft.with("subscribe:")); got != len(forecastTopics) {
		t.Errorf("subscribe calls = %d, want %d", got, len(forecastTopics))
	}
	if got := s.Stats().FailedUnsubscribes; got != 0 {
		t.Errorf("Stats().FailedUnsubscribes = %d, want 0", got)
	}
}

func TestShutdown_DrainBound(t *testing.T) {
	tests := []struct {
		name       string
		drainPolls int
		polls      []PollResult
		wantPolls  int
	}{
		{name: "all ok", polls: nil, wantPolls: 3},
		{
			name:      "retryable errors are swallowed",
			polls:     []PollResult{Retryable(errNetwork), Retryable(errNetwork), Retryable(errNetwork), OK()},
			wantPolls: 3,
		},
		{
			name:      "fatal ends drain early",
			polls:     []PollResult{OK(), Fatal(errNetwork)},
			wantPolls: 2,
		},
		{name: "custom drain count", drainPolls: 5, wantPolls: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ft := &fakeTransport{}
			var sleeps int
			s := newTestSession(t, ft, Config{
				DrainPolls: tt.drainPolls,
				Sleep: func(context.Context, time.Duration) error {
					sleeps++
					return nil
				},
			})
			if err := s.Connect(context.Background()); err != nil {
				t.Fatalf("Connect() error = %v", err)
			}
			ft.polls = tt.polls

			if err := s.Shutdown(context.Background()); err != nil {
				t.Fatalf("Shutdown() error = %v", err)
			}

			if ft.pollCount != tt.wantPolls {
				t.Errorf("drain polls = %d, want %d", ft.pollCount, tt.wantPolls)
			}
			if sleeps >= ft.pollCount+1 {
				t.Errorf("sleeps = %d, expected fewer than polls+1", sleeps)
			}
			if last := ft.events[len(ft.events)-1]; last != "disconnect" {
				t.Errorf("last event = %q, want disconnect", last)
			}
		})
	}
}

func TestShutdown_DisconnectError(t *testing.T) {
	ft := &fakeTransport{disconnectErr: errNetwork}
	var disconnected bool
	s := newTestSession(t, ft, Config{
		Callbacks: Callbacks{OnDisconnect: func(*Session) { disconnected = true }},
	})
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	err := s.Shutdown(context.Background())
	if !errors.Is(err, ErrDisconnect) || !errors.Is(err, errNetwork) {
		t.Errorf("Shutdown() error = %v, want ErrDisconnect wrapping transport error", err)
	}
	if !disconnected {
		t.Error("OnDisconnect not called")
	}
	if s.State() != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", s.State())
	}
}

func TestSession_CallbackOrdering(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ft := &fakeTransport{
		polls: []PollResult{
			OK(
				Message{Topic: "user/integration/air_quality/0/current", FeedID: "air_quality", Payload: []byte(`{"aqi":42}`)},
				Message{Topic: "time/seconds", Payload: []byte("1700000000")},
			),
			OK(),
			OK(Message{Topic: "user/feeds/temp", FeedID: "temp", Payload: []byte("21.5")}),
		},
		onPoll: cancelAt(3, cancel),
	}

	var calls []string
	s := newTestSession(t, ft, Config{
		Callbacks: Callbacks{
			OnConnect: func(s *Session) {
				calls = append(calls, "connect:"+s.State().String())
			},
			OnSubscribe: func(_ *Session, userData any, topic string, qos byte) {
				calls = append(calls, fmt.Sprintf("subscribe:%v:%s:%d", userData, topic, qos))
			},
			OnMessage: func(_ *Session, feedID, payload string) {
				calls = append(calls, "message:"+feedID+"="+payload)
			},
			OnRawMessage: func(_ *Session, msg Message) {
				calls = append(calls, "raw:"+msg.Topic)
			},
			OnDisconnect: func(*Session) {
				calls = append(calls, "disconnect")
			},
		},
		Topics:   []string{"t"},
		UserData: "ud",
	})

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{
		"connect:connected",
		"subscribe:ud:t:1",
		`message:air_quality={"aqi":42}`,
		"raw:user/integration/air_quality/0/current",
		"message:time/seconds=1700000000",
		"raw:time/seconds",
		"message:temp=21.5",
		"raw:user/feeds/temp",
		"disconnect",
	}
	if !slices.Equal(calls, want) {
		t.Errorf("callbacks = %v\nwant %v", calls, want)
	}
	if got := s.Stats().Messages; got != 3 {
		t.Errorf("Stats().Messages = %d, want 3", got)
	}
}

func TestRun_FatalPoll(t *testing.T) {
	ft := &fakeTransport{polls: []PollResult{OK(), Fatal(errNetwork)}}
	s := newTestSession(t, ft, Config{})

	err := s.Run(context.Background())
	if !errors.Is(err, ErrFatalPoll) || !errors.Is(err, errNetwork) {
		t.Fatalf("Run() error = %v, want ErrFatalPoll wrapping cause", err)
	}
	if ft.count("disconnect") != 0 || len(ft.with("unsubscribe:")) != 0 {
		t.Errorf("fatal poll should skip shutdown, events = %v", ft.events)
	}
	if ft.reconnects != 0 {
		t.Errorf("reconnects = %d, want 0", ft.reconnects)
	}
}

func TestRun_ReconnectFailurePropagates(t *testing.T) {
	tests := []struct {
		name         string
		resetErr     error
		reconnectErr error
	}{
		{name: "reconnect fails", reconnectErr: errNetwork},
		{name: "network reset fails", resetErr: errNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ft := &fakeTransport{
				polls:        []PollResult{Retryable(errors.New("loop"))},
				resetErr:     tt.resetErr,
				reconnectErr: tt.reconnectErr,
			}
			s := newTestSession(t, ft, Config{})

			err := s.Run(context.Background())
			if !errors.Is(err, ErrReconnect) || !errors.Is(err, errNetwork) {
				t.Fatalf("Run() error = %v, want ErrReconnect wrapping cause", err)
			}
			if ft.reconnects > 1 {
				t.Errorf("reconnects = %d, reconnect must not be retried", ft.reconnects)
			}
			if ft.count("disconnect") != 0 {
				t.Error("failed reconnect should not run shutdown")
			}
		})
	}
}

func TestRun_ResetterFromConfig(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ft := &fakeTransport{
		polls:  []PollResult{Retryable(errNetwork)},
		onPoll: cancelAt(2, cancel),
	}
	custom := &countingResetter{}
	s := newTestSession(t, ft, Config{Resetter: custom})

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if custom.calls != 1 || ft.resets != 0 {
		t.Errorf("custom resets, transport resets = %d, %d; want 1, 0", custom.calls, ft.resets)
	}
}

type countingResetter struct{ calls int }

func (r *countingResetter) ResetNetwork(context.Context) error {
	r.calls++
	return nil
}

func TestRun_CancelledBeforePoll(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ft := &fakeTransport{}
	s := newTestSession(t, ft, Config{
		Callbacks: Callbacks{OnConnect: func(*Session) { cancel() }},
	})

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	// Only the drain polls ran.
	if ft.pollCount != DefaultDrainPolls {
		t.Errorf("polls = %d, want %d", ft.pollCount, DefaultDrainPolls)
	}
}

func TestConnect_Errors(t *testing.T) {
	t.Run("connect fails", func(t *testing.T) {
		ft := &fakeTransport{connectErr: errNetwork}
		var connected bool
		s := newTestSession(t, ft, Config{
			Callbacks: Callbacks{OnConnect: func(*Session) { connected = true }},
		})

		err := s.Connect(context.Background())
		if !errors.Is(err, ErrConnect) || !errors.Is(err, errNetwork) {
			t.Errorf("Connect() error = %v, want ErrConnect", err)
		}
		if connected {
			t.Error("OnConnect called after failed connect")
		}
		if ft.reconnects != 0 {
			t.Error("initial connect must not be retried")
		}
		if s.State() != StateDisconnected {
			t.Errorf("State() = %v, want disconnected", s.State())
		}
	})

	t.Run("subscribe fails", func(t *testing.T) {
		ft := &fakeTransport{subscribeErr: map[string]error{"forecast_today": errNetwork}}
		s := newTestSession(t, ft, Config{})

		err := s.Connect(context.Background())
		if !errors.Is(err, ErrSubscribe) {
			t.Errorf("Connect() error = %v, want ErrSubscribe", err)
		}
		if s.State() != StateConnected {
			t.Errorf("State() = %v, want connected", s.State())
		}
	})

	t.Run("already connected", func(t *testing.T) {
		s := newTestSession(t, &fakeTransport{}, Config{})
		if err := s.Connect(context.Background()); err != nil {
			t.Fatalf("Connect() error = %v", err)
		}
		if err := s.Connect(context.Background()); !errors.Is(err, ErrAlreadyConnected) {
			t.Errorf("second Connect() error = %v, want ErrAlreadyConnected", err)
		}
		if s.State() != StateSubscribed {
			t.Errorf("State() = %v, want subscribed", s.State())
		}
	})
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("sleepContext() error = %v, want context.Canceled", err)
	}
	if err := sleepContext(context.Background(), time.Millisecond); err != nil {
		t.Errorf("sleepContext() error = %v, want nil", err)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateDisconnected, "disconnected"},
		{StateConnected, "connected"},
		{StateSubscribed, "subscribed"},
		{StateDraining, "draining"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
