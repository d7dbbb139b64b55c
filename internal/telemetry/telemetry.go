// =============================================================================
// Millennium 链路追踪
// =============================================================================
// 桥接握手与后端启动的 span 通过 OTLP gRPC 导出。禁用时不创建任何
// exporter，全局 TracerProvider 保持 noop。
// =============================================================================

package telemetry

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Instrumentation scopes used by the loader's packages.
const (
	ScopeBridge = "github.com/BaSui01/millennium/bridge"
	ScopeLoader = "github.com/BaSui01/millennium/loader"
)

// Span attribute keys shared by the bridge and the loader.
const (
	AttrPlugin   = attribute.Key("millennium.plugin")
	AttrTarget   = attribute.Key("millennium.target")
	AttrAttempt  = attribute.Key("millennium.attempt")
	AttrEndpoint = attribute.Key("millennium.endpoint")
)

// Config 遥测配置
type Config struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP gRPC 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称，为空时使用 millennium
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 根 span 采样率，子 span 跟随父级
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// DefaultConfig 返回默认遥测配置
func DefaultConfig() Config {
	return Config{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "millennium",
		SampleRate:   0.1,
	}
}

// Tracer returns the tracer for scope from the global provider, so spans
// follow whatever Init installed.
func Tracer(scope string) trace.Tracer {
	return otel.Tracer(scope, trace.WithInstrumentationVersion(buildVersion()))
}

// Providers owns the SDK TracerProvider. It is nil when telemetry is
// disabled and Shutdown is then a no-op.
type Providers struct {
	tp *sdktrace.TracerProvider
}

// Init installs a global TracerProvider exporting to cfg.OTLPEndpoint.
// version labels the service; empty falls back to the module build version.
func Init(cfg Config, version string, logger *zap.Logger) (*Providers, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "telemetry"))
	if !cfg.Enabled {
		logger.Debug("telemetry disabled")
		return &Providers{}, nil
	}

	res, err := newResource(cfg, version)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	)
	otel.SetTracerProvider(tp)

	logger.Info("telemetry initialized",
		zap.String("endpoint", cfg.OTLPEndpoint),
		zap.String("service_name", serviceName(cfg)),
		zap.Float64("sample_rate", cfg.SampleRate),
	)
	return &Providers{tp: tp}, nil
}

func newResource(cfg Config, version string) (*resource.Resource, error) {
	if version == "" || version == "dev" {
		version = buildVersion()
	}
	res, err := resource.New(context.Background(),
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName(cfg)),
			semconv.ServiceVersion(version),
			semconv.ServiceInstanceID(uuid.NewString()),
			semconv.ProcessPID(os.Getpid()),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create otel resource: %w", err)
	}
	return res, nil
}

func serviceName(cfg Config) string {
	if cfg.ServiceName == "" {
		return DefaultConfig().ServiceName
	}
	return cfg.ServiceName
}

// Shutdown flushes pending spans and closes the exporter.
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	if err := p.tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown tracer provider: %w", err)
	}
	return nil
}

// buildVersion is the main module version from build info, or "dev".
func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" || info.Main.Version == "(devel)" {
		return "dev"
	}
	return info.Main.Version
}
