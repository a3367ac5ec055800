package provider

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Settings selects the providers a process registers.
type Settings struct {
	// Production adds the HTTP provider at Endpoint next to the stub.
	Production bool
	Endpoint   string
	// SigV4Service enables request signing when set.
	SigV4Service string
	AWSRegion    string
	AWSProfile   string
	RoleARN      string
	// StubSteps is how many polls a stub job takes; zero means 3.
	StubSteps int
	Logger    *slog.Logger
}

// NewRegistryFor builds the registry both the API and the workers use,
// so previews and generations resolve the same providers.
func NewRegistryFor(ctx context.Context, s Settings) (*Registry, error) {
	steps := s.StubSteps
	if steps == 0 {
		steps = 3
	}
	reg := NewRegistry(NewStub("stub", steps))
	if !s.Production {
		return reg, nil
	}

	var signer *SigV4Signer
	if s.SigV4Service != "" {
		awsCfg, err := LoadAWSConfig(ctx, s.AWSRegion, s.AWSProfile, s.RoleARN)
		if err != nil {
			return nil, err
		}
		signer = NewSigV4Signer(awsCfg, s.SigV4Service)
	}
	h, err := NewHTTP(HTTPOptions{
		Name:     "http",
		Endpoint: s.Endpoint,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		Signer: signer,
		Logger: s.Logger,
	})
	if err != nil {
		return nil, err
	}
	reg.Register(h)
	return reg, nil
}
