package redisq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/kailas-cloud/searchbridge/internal/db/redis"
	"github.com/kailas-cloud/searchbridge/internal/queue"
)

func TestSubmitGeneration_SingleRPush(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	gen, err := queue.NewGeneration("places",
		[]queue.Unit{
			queue.NewImportBatch("places", "places_swap", 0, 100),
			queue.NewImportBatch("places", "places_swap", 100, 100),
		},
		queue.NewSwap("places", "places_swap"),
	)
	if err != nil {
		t.Fatal(err)
	}

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			if cmd[0] != "RPUSH" || cmd[1] != DefaultKey || len(cmd) != 5 {
				return false
			}
			var last queue.Unit
			if err := json.Unmarshal([]byte(cmd[4]), &last); err != nil {
				return false
			}
			return last.Kind == queue.KindSwap && last.Generation == gen.ID
		})).
		Return(mock.Result(mock.RedisInt64(3))).
		Times(1)

	q := New(redis.NewStoreForTest(c), nil)
	if err := q.SubmitGeneration(context.Background(), gen); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEnqueue_RejectsInvalidUnit(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	q := New(redis.NewStoreForTest(c), nil)
	if err := q.Enqueue(context.Background(), queue.NewUpsert("places", "", "")); err == nil {
		t.Fatal("expected validation error")
	}
}

const (
	testKey        = "jobs"
	testProcessing = "jobs:processing:w1"
	testDead       = "jobs:dead"
)

func newTestQueue(c *mock.Client) *Queue {
	return New(redis.NewStoreForTest(c), nil).
		WithKey(testKey).
		WithConsumer("w1").
		WithPollTimeout(time.Second)
}

func TestKeys(t *testing.T) {
	q := New(nil, nil)
	if q.ProcessingKey() != DefaultKey+":processing:default" || q.DeadKey() != DefaultKey+":dead" {
		t.Errorf("keys = %s, %s", q.ProcessingKey(), q.DeadKey())
	}
}

func TestPop_SkipsTimeoutsAndParksMalformed(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	want := queue.NewDelete("places", "42", "1")
	payload, _ := json.Marshal(want)

	gomock.InOrder(
		c.EXPECT().
			Do(gomock.Any(), mock.Match("BLMOVE", testKey, testProcessing, "LEFT", "RIGHT", "1")).
			Return(mock.Result(mock.RedisNil())),
		c.EXPECT().
			Do(gomock.Any(), mock.Match("BLMOVE", testKey, testProcessing, "LEFT", "RIGHT", "1")).
			Return(mock.Result(mock.RedisBlobString("{not json"))),
		c.EXPECT().
			Do(gomock.Any(), mock.Match("RPUSH", testDead, "{not json")).
			Return(mock.Result(mock.RedisInt64(1))),
		c.EXPECT().
			Do(gomock.Any(), mock.Match("LREM", testProcessing, "1", "{not json")).
			Return(mock.Result(mock.RedisInt64(1))),
		c.EXPECT().
			Do(gomock.Any(), mock.Match("BLMOVE", testKey, testProcessing, "LEFT", "RIGHT", "1")).
			Return(mock.Result(mock.RedisBlobString(string(payload)))),
	)

	q := newTestQueue(c)
	got, err := q.Pop(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != want.ID || got.DocumentID != "42" || got.Kind != queue.KindDelete {
		t.Errorf("Pop() = %+v, want %+v", got, want)
	}
}

func TestAck_RemovesFromProcessingList(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	u := queue.NewUpsert("places", "7", "1")
	payload, _ := json.Marshal(u)

	gomock.InOrder(
		c.EXPECT().
			Do(gomock.Any(), mock.Match("BLMOVE", testKey, testProcessing, "LEFT", "RIGHT", "1")).
			Return(mock.Result(mock.RedisBlobString(string(payload)))),
		c.EXPECT().
			Do(gomock.Any(), mock.Match("LREM", testProcessing, "1", string(payload))).
			Return(mock.Result(mock.RedisInt64(1))).
			Times(1),
	)

	q := newTestQueue(c)
	got, err := q.Pop(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if err := q.Ack(context.Background(), got); err != nil {
		t.Fatalf("Ack() = %v", err)
	}
	// A second ack of the same unit is a no-op.
	if err := q.Ack(context.Background(), got); err != nil {
		t.Fatalf("second Ack() = %v", err)
	}
}

func TestAck_FailureKeepsUnitPending(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	u := queue.NewUpsert("places", "7", "1")
	payload, _ := json.Marshal(u)

	gomock.InOrder(
		c.EXPECT().
			Do(gomock.Any(), mock.Match("BLMOVE", testKey, testProcessing, "LEFT", "RIGHT", "1")).
			Return(mock.Result(mock.RedisBlobString(string(payload)))),
		c.EXPECT().
			Do(gomock.Any(), mock.Match("LREM", testProcessing, "1", string(payload))).
			Return(mock.ErrorResult(context.DeadlineExceeded)),
		c.EXPECT().
			Do(gomock.Any(), mock.Match("LREM", testProcessing, "1", string(payload))).
			Return(mock.Result(mock.RedisInt64(1))),
	)

	q := newTestQueue(c)
	got, err := q.Pop(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if err := q.Ack(context.Background(), got); err == nil {
		t.Fatal("expected ack error")
	}
	if err := q.Ack(context.Background(), got); err != nil {
		t.Fatalf("retried Ack() = %v", err)
	}
}

func TestDeadLetter_ParksUnitWithCause(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	u := queue.NewImportBatch("places", "places_swap", 100, 100)
	payload, _ := json.Marshal(u)

	gomock.InOrder(
		c.EXPECT().
			Do(gomock.Any(), mock.Match("BLMOVE", testKey, testProcessing, "LEFT", "RIGHT", "1")).
			Return(mock.Result(mock.RedisBlobString(string(payload)))),
		c.EXPECT().
			Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
				if cmd[0] != "RPUSH" || cmd[1] != testDead || len(cmd) != 3 {
					return false
				}
				var d queue.DeadUnit
				if err := json.Unmarshal([]byte(cmd[2]), &d); err != nil {
					return false
				}
				return d.Unit.ID == u.ID && d.Error == "engine down" && !d.FailedAt.IsZero()
			})).
			Return(mock.Result(mock.RedisInt64(1))),
		c.EXPECT().
			Do(gomock.Any(), mock.Match("LREM", testProcessing, "1", string(payload))).
			Return(mock.Result(mock.RedisInt64(1))),
	)

	q := newTestQueue(c)
	got, err := q.Pop(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if err := q.DeadLetter(context.Background(), got, errors.New("engine down")); err != nil {
		t.Fatalf("DeadLetter() = %v", err)
	}
}

func TestRecover_RequeuesProcessingList(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	gomock.InOrder(
		c.EXPECT().
			Do(gomock.Any(), mock.Match("LMOVE", testProcessing, testKey, "RIGHT", "LEFT")).
			Return(mock.Result(mock.RedisBlobString("b"))),
		c.EXPECT().
			Do(gomock.Any(), mock.Match("LMOVE", testProcessing, testKey, "RIGHT", "LEFT")).
			Return(mock.Result(mock.RedisBlobString("a"))),
		c.EXPECT().
			Do(gomock.Any(), mock.Match("LMOVE", testProcessing, testKey, "RIGHT", "LEFT")).
			Return(mock.Result(mock.RedisNil())),
	)

	q := newTestQueue(c)
	n, err := q.Recover(context.Background())
	if err != nil || n != 2 {
		t.Errorf("Recover() = %d, %v, want 2 units", n, err)
	}
}

func TestRecover_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool { return cmd[0] == "LMOVE" })).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	q := newTestQueue(c)
	if _, err := q.Recover(context.Background()); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Recover() err = %v", err)
	}
}

func TestPop_ContextCancelled(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	q := New(redis.NewStoreForTest(c), nil)
	if _, err := q.Pop(ctx); err != context.Canceled {
		t.Errorf("Pop() err = %v, want context.Canceled", err)
	}
}

func TestLen(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("LLEN", DefaultKey)).
		Return(mock.Result(mock.RedisInt64(12)))

	q := New(redis.NewStoreForTest(c), nil)
	n, err := q.Len(context.Background())
	if err != nil || n != 12 {
		t.Errorf("Len() = %d, %v", n, err)
	}
}
