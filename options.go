package tanker

import (
	nethttp "net/http"
	"time"

	"github.com/wippyai/tanker-go/config"
	"github.com/wippyai/tanker-go/errors"
	"github.com/wippyai/tanker-go/future"
	"github.com/wippyai/tanker-go/http"
	"github.com/wippyai/tanker-go/metrics"
	"github.com/wippyai/tanker-go/native"
	"github.com/wippyai/tanker-go/resource"
	"github.com/wippyai/tanker-go/stream"
)

// DefaultSDKType is sent to the Tanker server when Options.SDKType is empty.
const DefaultSDKType = "client-go"

// Options configures a Core.
type Options struct {
	AppID          string
	URL            string
	PersistentPath string
	CachePath      string
	SDKType        string
	HTTP           HTTPOptions
	// StreamChunkSize is the size of the output chunk of encryption
	// streams. Zero means stream.DefaultChunkSize.
	StreamChunkSize int
}

// HTTPOptions configures the outbound HTTP adapter. With Disabled set,
// native uses its built-in client.
type HTTPOptions struct {
	Disabled       bool
	Client         *nethttp.Client
	MaxAttempts    int
	AttemptTimeout time.Duration
	BackoffBase    time.Duration
	BackoffMax     time.Duration
}

// OptionsFromConfig maps a loaded configuration onto Options.
func OptionsFromConfig(c *config.Config) Options {
	return Options{
		AppID:          c.AppID,
		URL:            c.URL,
		PersistentPath: c.PersistentPath,
		CachePath:      c.CachePath,
		SDKType:        c.SDKType,
		HTTP: HTTPOptions{
			Disabled:       !c.HTTP.Enabled,
			MaxAttempts:    c.HTTP.MaxAttempts,
			AttemptTimeout: c.HTTP.AttemptTimeout,
			BackoffBase:    c.HTTP.BackoffBase,
			BackoffMax:     c.HTTP.BackoffMax,
		},
		StreamChunkSize: c.Stream.ChunkSize,
	}
}

func (o *Options) validate() error {
	switch {
	case o.AppID == "":
		return errors.InvalidArgument("create", "app id is empty")
	case o.PersistentPath == "":
		return errors.InvalidArgument("create", "persistent path is empty")
	case o.StreamChunkSize < 0:
		return errors.InvalidArgument("create", "stream chunk size is negative")
	}
	return nil
}

func (o *Options) sdkType() string {
	if o.SDKType == "" {
		return DefaultSDKType
	}
	return o.SDKType
}

func (o *Options) cachePath() string {
	if o.CachePath == "" {
		return o.PersistentPath
	}
	return o.CachePath
}

func (o *Options) httpConfig(obs http.Observer) http.Config {
	return http.Config{
		Client:         o.HTTP.Client,
		Observer:       obs,
		SDKType:        o.sdkType(),
		SDKVersion:     Version(),
		MaxAttempts:    o.HTTP.MaxAttempts,
		AttemptTimeout: o.HTTP.AttemptTimeout,
		BackoffBase:    o.HTTP.BackoffBase,
		BackoffMax:     o.HTTP.BackoffMax,
		Jitter:         http.DefaultJitter,
	}
}

type settings struct {
	registry     *resource.Registry
	observers    []future.Observer
	resourceObs  []resource.Observer
	httpObserver http.Observer
}

// Option configures how a Core is wired.
type Option func(*settings)

// WithRegistry tracks the native handles of the Core in reg instead of a
// private registry.
func WithRegistry(reg *resource.Registry) Option {
	return func(s *settings) { s.registry = reg }
}

// WithObserver receives the lifecycle of every native operation.
func WithObserver(o future.Observer) Option {
	return func(s *settings) { s.observers = append(s.observers, o) }
}

// WithMetrics reports handles, operations and HTTP requests to c.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *settings) {
		s.observers = append(s.observers, c)
		s.resourceObs = append(s.resourceObs, c)
		s.httpObserver = c
	}
}

// fanout forwards operation events to several observers.
type fanout []future.Observer

func (f fanout) OperationSubmitted(op string) {
	for _, o := range f {
		o.OperationSubmitted(op)
	}
}

func (f fanout) OperationCompleted(op string, outcome future.Outcome) {
	for _, o := range f {
		o.OperationCompleted(op, outcome)
	}
}

func (f fanout) LateCompletion(op string) {
	for _, o := range f {
		o.LateCompletion(op)
	}
}

func (f fanout) ProtocolViolation(op string) {
	for _, o := range f {
		o.ProtocolViolation(op)
	}
}

// Padding controls how clear data is padded before encryption.
type Padding struct {
	step uint32
	set  bool
}

var (
	// PaddingAuto lets native pick the padding. It is the default.
	PaddingAuto = Padding{step: native.PaddingAuto}
	// PaddingOff disables padding.
	PaddingOff = Padding{step: native.PaddingOff}
)

// PaddingStep pads clear data up to a multiple of n. n must be at least 2;
// a smaller step is rejected by the operation it is passed to.
func PaddingStep(n uint32) Padding { return Padding{step: n, set: true} }

// Step returns the native padding step.
func (p Padding) Step() uint32 { return p.step }

func (p Padding) validate(op string) error {
	if p.set && p.step < 2 {
		return errors.InvalidArgument(op, "padding step must be at least 2")
	}
	return nil
}

// EncryptionOptions selects the recipients of encrypted data and its
// padding. The zero value does not share with the encrypting user; start
// from NewEncryptionOptions.
type EncryptionOptions struct {
	ShareWithUsers  []string
	ShareWithGroups []string
	ShareWithSelf   bool
	Padding         Padding
}

// NewEncryptionOptions returns options sharing with the encrypting user
// only, with automatic padding.
func NewEncryptionOptions() *EncryptionOptions {
	return &EncryptionOptions{ShareWithSelf: true}
}

func (o *EncryptionOptions) native(op string) (*native.EncryptOptions, error) {
	if o == nil {
		o = NewEncryptionOptions()
	}
	if err := o.Padding.validate(op); err != nil {
		return nil, err
	}
	return &native.EncryptOptions{
		ShareWithUsers:  o.ShareWithUsers,
		ShareWithGroups: o.ShareWithGroups,
		ShareWithSelf:   o.ShareWithSelf,
		PaddingStep:     o.Padding.step,
	}, nil
}

// SharingOptions selects the recipients of Share.
type SharingOptions struct {
	ShareWithUsers  []string
	ShareWithGroups []string
}

// VerificationOptions tunes identity verification calls.
type VerificationOptions struct {
	// WithSessionToken asks the server for a session token.
	WithSessionToken bool
	// AllowE2EMethodSwitch allows switching between an end-to-end
	// passphrase and a regular method.
	AllowE2EMethodSwitch bool
}

func (o *VerificationOptions) native() *native.VerificationOptions {
	if o == nil {
		return nil
	}
	return &native.VerificationOptions{
		WithSessionToken:     o.WithSessionToken,
		AllowE2EMethodSwitch: o.AllowE2EMethodSwitch,
	}
}

func chunkSize(n int) stream.Options { return stream.Options{ChunkSize: n} }
