package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test-namespace"),
				WithSubsystem("test-subsystem"),
				WithMetricPrefix("test-prefix"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithMetricsEnabled(true),
				WithRefreshInterval(10*time.Second),
				WithCustomLabels(map[string]string{"env": "test", "version": "1.0"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given metrics recording", t, func() {
		Convey("When recording pipeline metrics", func() {
			Convey("Then it should record application counters", func() {
				So(func() {
					RecordApplicationSubmitted()
					RecordApplicationDuplicate()
					RecordApplicationApproved()
					RecordApplicationRejected()
					RecordApplicationWaitlisted()
					RecordApprovalIdempotent()
				}, ShouldNotPanic)
			})

			Convey("And it should record artifact counters", func() {
				So(func() {
					RecordMatchScheduled()
					RecordSessionRecorded()
					RecordTranscriptIngested()
					RecordTranscriptDuplicate()
					RecordInsightGenerated()
				}, ShouldNotPanic)
			})

			Convey("And it should record screening latency", func() {
				So(func() {
					RecordScreeningLatency(1.0)
					RecordScreeningLatency(2.5)
				}, ShouldNotPanic)
			})
		})

		Convey("When recording operational metrics", func() {
			So(func() {
				UpdateQueueSize(1000)
				UpdateWorkerCount(8)
				UpdateTotalApplications(10000)
				UpdateQueueCapacity(10000)
				UpdateQueueUtilization(0.5)
			}, ShouldNotPanic)
		})

		Convey("When recording HTTP metrics", func() {
			So(func() {
				RecordHTTPRequest("/healthz", "GET", "200")
				RecordHTTPRequest("/studies/apply", "POST", "201")
				RecordHTTPRequestDuration("/healthz", "GET", "200", 5.0)
			}, ShouldNotPanic)
		})

		Convey("When recording error metrics", func() {
			So(func() {
				RecordScreeningError()
				RecordStoreError("create_application")
				RecordWorkerError()
				RecordQueueEnqueueError()
				RecordErrorByComponent("store", "conflict")
				RecordErrorByType("conflict", "medium")
				RecordErrorByEndpoint("/webhooks/transcript", "POST", "conflict")
				RecordErrorLatency("store", "conflict", 5.0)
			}, ShouldNotPanic)
		})

		Convey("When recording latency metrics", func() {
			So(func() {
				RecordStoreWriteLatency(5.0)
				RecordStoreQueryLatency(2.0)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueProcessingLatency(20.0)
				RecordWorkerProcessingLatency(50.0)
				RecordExtractionLatency(110.0)
			}, ShouldNotPanic)
		})

		Convey("When recording system metrics", func() {
			So(func() {
				UpdateSystemMemoryUsage(1024 * 1024 * 100)
				UpdateSystemGoroutineCount(100)
				RecordSystemGCPauseTime(1.0)
			}, ShouldNotPanic)
		})
	})
}

func TestMetricsEdgeCases(t *testing.T) {
	Convey("Given metrics edge cases", t, func() {
		Convey("When using zero values", func() {
			So(func() {
				UpdateQueueSize(0)
				UpdateWorkerCount(0)
				UpdateTotalApplications(0)
				RecordScreeningLatency(0.0)
				RecordHTTPRequestDuration("/test", "GET", "200", 0.0)
			}, ShouldNotPanic)
		})

		Convey("When using negative values", func() {
			So(func() {
				UpdateQueueSize(-100)
				UpdateWorkerCount(-10)
			}, ShouldNotPanic)
		})

		Convey("When using empty strings", func() {
			So(func() {
				RecordHTTPRequest("", "", "200")
				RecordErrorByComponent("", "")
				RecordErrorByEndpoint("", "", "")
			}, ShouldNotPanic)
		})
	})
}

func TestMetricsConcurrency(t *testing.T) {
	Convey("Given metrics concurrency", t, func() {
		Convey("When recording metrics concurrently", func() {
			done := make(chan bool, 10)

			for i := 0; i < 10; i++ {
				go func(id int) {
					for j := 0; j < 100; j++ {
						RecordApplicationSubmitted()
						UpdateQueueSize(1000 + j)
						RecordScreeningLatency(float64(j))
						RecordHTTPRequest("/test", "GET", "200")
					}
					done <- true
				}(i)
			}

			for i := 0; i < 10; i++ {
				<-done
			}

			Convey("Then it should handle concurrent access without panics", func() {
				So(true, ShouldBeTrue) // If we get here, no panics occurred
			})
		})
	})
}

func TestMetricsOptionsValidation(t *testing.T) {
	Convey("Given metrics options validation", t, func() {
		Convey("When creating with empty or nil option values", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithMetricPrefix(""),
				WithHistogramBuckets(nil),
				WithCustomLabels(nil),
				WithRefreshInterval(0),
				WithPrometheusRegistry(registry),
			)

			Convey("Then defaults should stand and creation should succeed", func() {
				So(manager, ShouldNotBeNil)
			})
		})
	})
}
