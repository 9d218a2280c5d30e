package kafka

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/twmb/franz-go/pkg/kgo"
)

type recordingHandler struct {
	handled []string
	fail    map[string]bool
}

func (h *recordingHandler) HandleEvent(event Event) error {
	h.handled = append(h.handled, event.ID)
	if h.fail[event.ID] {
		return errors.New("handler failure")
	}
	return nil
}

func testConsumer(handler EventHandler) *Consumer {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return &Consumer{topic: "analytics-events", handler: handler, logger: logger}
}

func eventRecord(partition int32, offset int64, id string) *kgo.Record {
	value := []byte(fmt.Sprintf(`{"id":%q,"type":"post_published","organizationId":"org-1"}`, id))
	return &kgo.Record{Topic: "analytics-events", Partition: partition, Offset: offset, Value: value}
}

func commitOffsets(records []*kgo.Record) map[int32]int64 {
	out := make(map[int32]int64, len(records))
	for _, r := range records {
		out[r.Partition] = r.Offset
	}
	return out
}

func TestProcessRecordsBlocksPartitionOnFailure(t *testing.T) {
	handler := &recordingHandler{fail: map[string]bool{"e1": true}}
	consumer := testConsumer(handler)

	records := []*kgo.Record{
		eventRecord(0, 0, "e0"),
		eventRecord(0, 1, "e1"),
		eventRecord(0, 2, "e2"),
		eventRecord(1, 0, "e3"),
		eventRecord(1, 1, "e4"),
	}

	commits := commitOffsets(consumer.processRecords(records))

	// e2 sits behind the failed e1 and must not be handled.
	want := []string{"e0", "e1", "e3", "e4"}
	if len(handler.handled) != len(want) {
		t.Fatalf("handled = %v, want %v", handler.handled, want)
	}
	for i, id := range want {
		if handler.handled[i] != id {
			t.Fatalf("handled = %v, want %v", handler.handled, want)
		}
	}

	// Partition 0 commits up to the last success before the failure;
	// partition 1 commits everything.
	if got := commits[0]; got != 0 {
		t.Fatalf("partition 0 commit offset = %d, want 0", got)
	}
	if got := commits[1]; got != 1 {
		t.Fatalf("partition 1 commit offset = %d, want 1", got)
	}
}

func TestProcessRecordsDropsUndecodableRecords(t *testing.T) {
	handler := &recordingHandler{}
	consumer := testConsumer(handler)

	records := []*kgo.Record{
		{Topic: "analytics-events", Partition: 0, Offset: 0, Value: []byte("not json")},
		eventRecord(0, 1, "e1"),
	}

	commits := commitOffsets(consumer.processRecords(records))

	// The poison record is skipped but committed so it never wedges the
	// partition.
	if len(handler.handled) != 1 || handler.handled[0] != "e1" {
		t.Fatalf("handled = %v, want [e1]", handler.handled)
	}
	if got := commits[0]; got != 1 {
		t.Fatalf("commit offset = %d, want 1", got)
	}
}

func TestProcessRecordsNothingToCommit(t *testing.T) {
	handler := &recordingHandler{fail: map[string]bool{"e0": true}}
	consumer := testConsumer(handler)

	commits := consumer.processRecords([]*kgo.Record{eventRecord(0, 0, "e0")})
	if len(commits) != 0 {
		t.Fatalf("expected no commits, got %v", commits)
	}
}
