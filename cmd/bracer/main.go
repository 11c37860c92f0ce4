package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"runtime/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"github.com/23skdu/longbow-bracer/internal/device"
	"github.com/23skdu/longbow-bracer/internal/kernel"
	"github.com/23skdu/longbow-bracer/internal/memory"
)

var (
	deviceOrdinal = flag.Int("device", 0, "Device ordinal to run on")
	elemCount     = flag.Int("n", 1<<20, "Elements per pipeline iteration")
	addend        = flag.Float64("addend", 20.0, "Scalar added by the demo kernel")
	blockSize     = flag.Int("block", 256, "Threads per block")
	quota         = flag.Int64("quota", 0, "Memory quota in bytes (0 = unlimited)")
	cpuProfile    = flag.String("cpuprofile", "", "Write cpu profile to file")
	listenAddr    = flag.String("listen", "", "Address to serve /metrics on (e.g. :8080)")
	enableOTel    = flag.Bool("otel", false, "Enable OpenTelemetry tracing (stdout)")
	duration      = flag.Duration("duration", 0, "Run soak test for specified duration (e.g. 10s, 20m)")
)

func main() {
	// Initialize logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	flag.Parse()

	if *enableOTel {
		shutdown, err := initTracer()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize tracer")
		}
		defer shutdown(context.Background())
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create CPU profile file")
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal().Err(err).Msg("Could not start CPU profile")
		}
		defer pprof.StopCPUProfile()
	}

	if *listenAddr != "" {
		http.Handle("/metrics", promhttp.Handler())
		go func() {
			log.Info().Str("addr", *listenAddr).Msg("Serving metrics")
			if err := http.ListenAndServe(*listenAddr, nil); err != nil {
				log.Fatal().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	dev, err := device.Get(*deviceOrdinal)
	if err != nil {
		log.Fatal().Err(err).Msg("Device not available")
	}
	log.Info().
		Str("device", dev.String()).
		Int("devices_visible", len(device.Devices())).
		Msg("Resolved device")

	stream := device.NewStream(dev)
	defer stream.Close()

	var opts []memory.Option
	if *quota > 0 {
		opts = append(opts, memory.WithQuota(*quota))
	}
	mgr := memory.NewManager(opts...)
	coord := kernel.NewCoordinator()

	if *duration > 0 {
		log.Info().Str("duration", duration.String()).Msg("Starting soak test")

		startTime := time.Now()
		endTime := startTime.Add(*duration)
		var totalElems int64
		var iter int

		for time.Now().Before(endTime) {
			if err := runPipeline(stream, mgr, coord, *elemCount, float32(*addend), *blockSize); err != nil {
				log.Fatal().Err(err).Int("iter", iter).Msg("Pipeline failed")
			}
			totalElems += int64(*elemCount)
			iter++

			if iter%10 == 0 {
				elapsed := time.Since(startTime)
				eps := float64(totalElems) / elapsed.Seconds()
				log.Info().
					Str("elapsed", elapsed.Round(time.Second).String()).
					Int("iter", iter).
					Int64("total_elements", totalElems).
					Float64("eps", eps).
					Msg("Soak test progress")
			}
		}

		totalElapsed := time.Since(startTime)
		log.Info().
			Int64("total_elements", totalElems).
			Dur("total_time", totalElapsed).
			Float64("avg_eps", float64(totalElems)/totalElapsed.Seconds()).
			Msg("Soak test complete")
		return
	}

	start := time.Now()
	if err := runPipeline(stream, mgr, coord, *elemCount, float32(*addend), *blockSize); err != nil {
		log.Fatal().Err(err).Msg("Pipeline failed")
	}
	elapsed := time.Since(start)

	log.Info().
		Int("elements", *elemCount).
		Dur("elapsed", elapsed).
		Int64("live_bytes", mgr.Used()).
		Float64("eps", float64(*elemCount)/elapsed.Seconds()).
		Msg("Pipeline complete")

	if *listenAddr != "" {
		select {}
	}
}

// runPipeline stages 0..n-1 on the host, round-trips through device memory
// with an add-scalar launch, and verifies the result after synchronize.
func runPipeline(stream *device.Stream, mgr *memory.Manager, coord *kernel.Coordinator, n int, addend float32, block int) error {
	h, err := mgr.AllocateHost(stream, memory.Float32, n)
	if err != nil {
		return err
	}
	defer h.Release()
	d, err := mgr.AllocateDevice(stream, memory.Float32, n)
	if err != nil {
		return err
	}
	defer d.Release()

	if err := stream.Synchronize(); err != nil {
		return err
	}
	data := h.Float32s()
	for i := range data {
		data[i] = float32(i)
	}

	k, err := coord.Compile(kernel.AddScalarF32, stream, kernel.Specialization{"dtype": "float32"})
	if err != nil {
		return err
	}

	grid := device.D1((n + block - 1) / block)
	if err := mgr.Copy(stream, h, d); err != nil {
		return err
	}
	if err := coord.EnqueueLaunch(stream, k,
		kernel.Args{kernel.Ptr{DevicePointer: d.Pointer()}, kernel.Scalar(addend), kernel.Scalar(n)},
		grid, device.D1(block)); err != nil {
		return err
	}
	if err := mgr.Copy(stream, d, h); err != nil {
		return err
	}
	if err := stream.Synchronize(); err != nil {
		return err
	}

	for i := 0; i < n; i++ {
		if data[i] != float32(i)+addend {
			log.Error().Int("index", i).Float32("got", data[i]).Msg("Verification mismatch")
			break
		}
	}
	return nil
}

func initTracer() (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("bracer"),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp.Shutdown, nil
}
