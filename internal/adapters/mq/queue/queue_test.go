package queue_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/fieldwork-io/fieldwork/internal/adapters/mq/queue"
	"github.com/fieldwork-io/fieldwork/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func testJob(id string) model.InsightJob {
	return model.InsightJob{
		JobID:      id,
		StudyID:    "study-1",
		SessionID:  "sess-1",
		RawText:    "transcript text",
		EnqueuedAt: time.Now().UTC(),
	}
}

func TestInMemoryQueue(t *testing.T) {
	Convey("Given a new in-memory queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(10), queue.WithBufferSize(10))
		Reset(func() { q.Close() })

		Convey("When a job is enqueued", func() {
			ok := q.Enqueue(context.Background(), testJob("job-1"))

			Convey("Then it is accepted and counted", func() {
				So(ok, ShouldBeTrue)
				So(q.Len(context.Background()), ShouldEqual, 1)
			})

			Convey("And it comes back out through Dequeue", func() {
				ctx, cancel := context.WithCancel(context.Background())
				defer cancel()
				jobs := q.Dequeue(ctx)
				select {
				case job := <-jobs:
					So(job.JobID, ShouldEqual, "job-1")
				case <-time.After(time.Second):
					t.Fatal("timed out waiting for job")
				}
			})
		})

		Convey("When the queue is at capacity", func() {
			for i := 0; i < 10; i++ {
				So(q.Enqueue(context.Background(), testJob(fmt.Sprintf("job-%d", i))), ShouldBeTrue)
			}

			Convey("Then further enqueues are refused", func() {
				So(q.Enqueue(context.Background(), testJob("job-overflow")), ShouldBeFalse)
				So(q.Len(context.Background()), ShouldEqual, 10)
			})
		})

		Convey("When the queue is closed", func() {
			So(q.Close(), ShouldBeNil)

			Convey("Then it reports closed and refuses new jobs", func() {
				So(q.IsClosed(), ShouldBeTrue)
				So(q.Enqueue(context.Background(), testJob("job-late")), ShouldBeFalse)
			})

			Convey("And closing again is a no-op", func() {
				So(q.Close(), ShouldBeNil)
			})
		})

		Convey("When the queue is closed with jobs still buffered", func() {
			So(q.Enqueue(context.Background(), testJob("job-1")), ShouldBeTrue)
			So(q.Enqueue(context.Background(), testJob("job-2")), ShouldBeTrue)
			So(q.Close(), ShouldBeNil)

			Convey("Then consumers drain the remainder before the channel closes", func() {
				ctx, cancel := context.WithCancel(context.Background())
				defer cancel()

				var got []string
				for job := range q.Dequeue(ctx) {
					got = append(got, job.JobID)
				}
				So(got, ShouldResemble, []string{"job-1", "job-2"})
			})
		})
	})
}

func TestQueueOrdering(t *testing.T) {
	Convey("Given a queue with several jobs", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(100), queue.WithBufferSize(100))
		for i := 0; i < 5; i++ {
			So(q.Enqueue(context.Background(), testJob(fmt.Sprintf("job-%d", i))), ShouldBeTrue)
		}
		So(q.Close(), ShouldBeNil)

		Convey("When a single consumer drains it", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			var got []string
			for job := range q.Dequeue(ctx) {
				got = append(got, job.JobID)
			}

			Convey("Then jobs arrive in enqueue order", func() {
				So(got, ShouldResemble, []string{"job-0", "job-1", "job-2", "job-3", "job-4"})
			})
		})
	})
}
