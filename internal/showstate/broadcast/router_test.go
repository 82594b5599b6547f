package broadcast

import (
	"errors"
	"testing"
	"time"
)

const testTopic = "LIGHT_UPDATED"

func newTestRouter() *Router {
	return NewRouter(testTopic, "PICK_UPDATED")
}

func receivePublication(t *testing.T, session *Session) Publication {
	t.Helper()
	select {
	case publication, ok := <-session.Updates():
		if !ok {
			t.Fatal("updates channel closed unexpectedly")
		}
		return publication
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for publication")
	}
	return Publication{}
}

func TestSubscribeUnknownTopic(t *testing.T) {
	t.Parallel()

	router := newTestRouter()
	if _, err := router.Subscribe("NO_SUCH_TOPIC"); !errors.Is(err, ErrTopicUnknown) {
		t.Fatalf("subscribe error = %v, want ErrTopicUnknown", err)
	}
}

func TestPublishUnknownTopic(t *testing.T) {
	t.Parallel()

	router := newTestRouter()
	if err := router.Publish("NO_SUCH_TOPIC", "payload"); !errors.Is(err, ErrTopicUnknown) {
		t.Fatalf("publish error = %v, want ErrTopicUnknown", err)
	}
}

func TestPublishReachesEverySubscriber(t *testing.T) {
	t.Parallel()

	router := newTestRouter()
	first, err := router.Subscribe(testTopic)
	if err != nil {
		t.Fatalf("subscribe first: %v", err)
	}
	second, err := router.Subscribe(testTopic)
	if err != nil {
		t.Fatalf("subscribe second: %v", err)
	}

	if err := router.Publish(testTopic, "snapshot-1"); err != nil {
		t.Fatalf("publish: %v", err)
	}

	for _, session := range []*Session{first, second} {
		publication := receivePublication(t, session)
		if publication.Payload != "snapshot-1" {
			t.Fatalf("payload = %v, want snapshot-1", publication.Payload)
		}
		if publication.Topic != testTopic {
			t.Fatalf("topic = %q, want %q", publication.Topic, testTopic)
		}
	}
}

func TestLateSubscriberSeesNothingUntilNextPublish(t *testing.T) {
	t.Parallel()

	router := newTestRouter()
	early, err := router.Subscribe(testTopic)
	if err != nil {
		t.Fatalf("subscribe early: %v", err)
	}
	if err := router.Publish(testTopic, "snapshot-1"); err != nil {
		t.Fatalf("publish first: %v", err)
	}
	receivePublication(t, early)

	late, err := router.Subscribe(testTopic)
	if err != nil {
		t.Fatalf("subscribe late: %v", err)
	}
	select {
	case publication := <-late.Updates():
		t.Fatalf("late subscriber received %v before any new publish", publication.Payload)
	case <-time.After(50 * time.Millisecond):
	}

	if err := router.Publish(testTopic, "snapshot-2"); err != nil {
		t.Fatalf("publish second: %v", err)
	}
	publication := receivePublication(t, late)
	if publication.Payload != "snapshot-2" {
		t.Fatalf("payload = %v, want snapshot-2", publication.Payload)
	}
}

func TestPerTopicOrdering(t *testing.T) {
	t.Parallel()

	router := newTestRouter()
	session, err := router.Subscribe(testTopic)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	for _, payload := range []string{"p1", "p2", "p3"} {
		if err := router.Publish(testTopic, payload); err != nil {
			t.Fatalf("publish %s: %v", payload, err)
		}
	}

	var lastSeq uint64
	for _, want := range []string{"p1", "p2", "p3"} {
		publication := receivePublication(t, session)
		if publication.Payload != want {
			t.Fatalf("payload = %v, want %s", publication.Payload, want)
		}
		if publication.Seq <= lastSeq {
			t.Fatalf("seq %d did not advance past %d", publication.Seq, lastSeq)
		}
		lastSeq = publication.Seq
	}
}

func TestCrossTopicIsolation(t *testing.T) {
	t.Parallel()

	router := newTestRouter()
	lights, err := router.Subscribe(testTopic)
	if err != nil {
		t.Fatalf("subscribe lights: %v", err)
	}

	if err := router.Publish("PICK_UPDATED", "pick-snapshot"); err != nil {
		t.Fatalf("publish picks: %v", err)
	}

	select {
	case publication := <-lights.Updates():
		t.Fatalf("light session received %v from pick topic", publication.Payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSlowConsumerKeepsNewestSnapshots(t *testing.T) {
	t.Parallel()

	router := newTestRouter()
	session, err := router.Subscribe(testTopic)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// Never read while publishing well past the queue depth.
	total := sessionQueueDepth * 3
	for i := 1; i <= total; i++ {
		if err := router.Publish(testTopic, i); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	// Pending publications are the newest ones, still in issue order.
	previous := 0
	drained := 0
	for {
		select {
		case publication := <-session.Updates():
			value := publication.Payload.(int)
			if value <= previous {
				t.Fatalf("publication %d arrived after %d", value, previous)
			}
			previous = value
			drained++
		default:
			if drained == 0 {
				t.Fatal("expected pending publications")
			}
			if previous != total {
				t.Fatalf("newest pending publication = %d, want %d", previous, total)
			}
			if drained > sessionQueueDepth {
				t.Fatalf("drained %d publications, queue depth is %d", drained, sessionQueueDepth)
			}
			return
		}
	}
}

func TestSessionStateTransitions(t *testing.T) {
	t.Parallel()

	router := newTestRouter()
	session, err := router.Subscribe(testTopic)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if state := session.State(); state != SessionPending {
		t.Fatalf("state = %q, want pending", state)
	}

	if err := router.Publish(testTopic, "snapshot-1"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if state := session.State(); state != SessionActive {
		t.Fatalf("state = %q, want active", state)
	}

	session.Close()
	if state := session.State(); state != SessionClosed {
		t.Fatalf("state = %q, want closed", state)
	}
}

func TestCloseIsIdempotentAndStopsDelivery(t *testing.T) {
	t.Parallel()

	router := newTestRouter()
	session, err := router.Subscribe(testTopic)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	session.Close()
	session.Close()

	// Publishing to a topic whose only session just closed is a safe no-op.
	if err := router.Publish(testTopic, "snapshot-1"); err != nil {
		t.Fatalf("publish after close: %v", err)
	}

	if _, ok := <-session.Updates(); ok {
		t.Fatal("expected closed updates channel")
	}
}

func TestRouterCloseClosesSessions(t *testing.T) {
	t.Parallel()

	router := newTestRouter()
	session, err := router.Subscribe(testTopic)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	router.Close()
	router.Close()

	if _, ok := <-session.Updates(); ok {
		t.Fatal("expected session closed by router shutdown")
	}
	if err := router.Publish(testTopic, "snapshot"); !errors.Is(err, ErrRouterClosed) {
		t.Fatalf("publish error = %v, want ErrRouterClosed", err)
	}
	if _, err := router.Subscribe(testTopic); !errors.Is(err, ErrRouterClosed) {
		t.Fatalf("subscribe error = %v, want ErrRouterClosed", err)
	}
}

func TestConcurrentPublishersKeepTotalOrderPerSubscriber(t *testing.T) {
	t.Parallel()

	router := newTestRouter()
	session, err := router.Subscribe(testTopic)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < sessionQueueDepth/2; i++ {
			_ = router.Publish(testTopic, "a")
		}
	}()
	for i := 0; i < sessionQueueDepth/2; i++ {
		_ = router.Publish(testTopic, "b")
	}
	<-done

	var lastSeq uint64
	for i := 0; i < sessionQueueDepth; i++ {
		publication := receivePublication(t, session)
		if publication.Seq <= lastSeq {
			t.Fatalf("seq %d did not advance past %d", publication.Seq, lastSeq)
		}
		lastSeq = publication.Seq
	}
}
