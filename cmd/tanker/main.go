package main

import (
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/tanker-go"
	"github.com/wippyai/tanker-go/config"
	"github.com/wippyai/tanker-go/native"
	"github.com/wippyai/tanker-go/native/ctanker"
	"github.com/wippyai/tanker-go/native/nativetest"
	"github.com/wippyai/tanker-go/native/wasmcore"
)

type flags struct {
	config      string
	backend     string
	core        string
	identity    string
	passphrase  string
	shareUsers  string
	shareGroups string
	padding     uint
	base64      bool
	interactive bool
}

func main() {
	var f flags
	flag.StringVar(&f.config, "config", "", "Path to a YAML configuration file")
	flag.StringVar(&f.backend, "native", "ctanker", "Native core: ctanker, wasm or sim")
	flag.StringVar(&f.core, "core", "", "Path to the WebAssembly core (with -native wasm)")
	flag.StringVar(&f.identity, "identity", os.Getenv("TANKER_IDENTITY"), "Identity to start the session with")
	flag.StringVar(&f.passphrase, "passphrase", "", "Verification passphrase (prompted when empty)")
	flag.StringVar(&f.shareUsers, "share-users", "", "Public identities to share with (comma-separated)")
	flag.StringVar(&f.shareGroups, "share-groups", "", "Group ids to share with (comma-separated)")
	flag.UintVar(&f.padding, "padding", 0, "Padding step (0 auto, 1 off)")
	flag.BoolVar(&f.base64, "base64", false, "Read and write ciphertext as base64")
	flag.BoolVar(&f.interactive, "i", false, "Interactive mode with TUI")
	flag.Usage = usage
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, &f, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: tanker [flags] version")
	fmt.Fprintln(os.Stderr, "       tanker [flags] prehash <password>")
	fmt.Fprintln(os.Stderr, "       tanker [flags] status")
	fmt.Fprintln(os.Stderr, "       tanker [flags] encrypt < clear > encrypted")
	fmt.Fprintln(os.Stderr, "       tanker [flags] decrypt < encrypted > clear")
	fmt.Fprintln(os.Stderr, "       tanker [flags] resource-id < encrypted")
	fmt.Fprintln(os.Stderr, "       tanker [flags] share <resource id>...")
	fmt.Fprintln(os.Stderr, "       tanker [flags] -i  (interactive mode)")
	flag.PrintDefaults()
}

func run(ctx context.Context, f *flags, args []string) error {
	cfg, err := config.Load(f.config)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	tanker.SetLogger(log)

	lib, closeLib, err := openLibrary(ctx, f)
	if err != nil {
		return err
	}
	defer closeLib()

	if f.interactive {
		return runInteractive(ctx, f, cfg, lib)
	}
	if len(args) == 0 {
		usage()
		return errors.New("no command")
	}

	switch cmd, rest := args[0], args[1:]; cmd {
	case "version":
		fmt.Printf("tanker-go %s, native %s\n", tanker.Version(), tanker.NativeVersion(lib))
		return nil
	case "prehash":
		if len(rest) != 1 {
			return errors.New("prehash takes one password")
		}
		h, err := tanker.PrehashPassword(ctx, lib, rest[0])
		if err != nil {
			return err
		}
		fmt.Println(h)
		return nil
	}

	core, err := openSession(ctx, f, cfg, lib)
	if err != nil {
		return err
	}
	defer func() {
		if err := core.Close(context.WithoutCancel(ctx)); err != nil {
			log.Warn("closing core failed", zap.Error(err))
		}
	}()

	switch cmd, rest := args[0], args[1:]; cmd {
	case "status":
		fmt.Println(core.Status())
		return nil
	case "encrypt":
		return encrypt(ctx, f, core)
	case "decrypt":
		return decrypt(ctx, f, core)
	case "resource-id":
		data, err := readInput(f)
		if err != nil {
			return err
		}
		id, err := core.GetResourceID(ctx, data)
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	case "share":
		if len(rest) == 0 {
			return errors.New("share takes at least one resource id")
		}
		return core.Share(ctx, rest, tanker.SharingOptions{
			ShareWithUsers:  splitList(f.shareUsers),
			ShareWithGroups: splitList(f.shareGroups),
		})
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	zc.DisableStacktrace = true
	return zc.Build()
}

func openLibrary(ctx context.Context, f *flags) (native.Library, func(), error) {
	switch f.backend {
	case "ctanker":
		lib, err := ctanker.New()
		if err != nil {
			return nil, nil, fmt.Errorf("load ctanker: %w", err)
		}
		return lib, func() {}, nil
	case "wasm":
		if f.core == "" {
			return nil, nil, errors.New("-native wasm needs -core <file.wasm>")
		}
		data, err := os.ReadFile(f.core)
		if err != nil {
			return nil, nil, fmt.Errorf("read core: %w", err)
		}
		lib, err := wasmcore.New(ctx, data, &wasmcore.Config{WASI: true})
		if err != nil {
			return nil, nil, fmt.Errorf("load core: %w", err)
		}
		return lib, func() { _ = lib.Close(context.WithoutCancel(ctx)) }, nil
	case "sim":
		return nativetest.New(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown native core %q", f.backend)
	}
}

// openSession starts a session for the configured identity, registering or
// verifying it with a passphrase when the server asks for it.
func openSession(ctx context.Context, f *flags, cfg *config.Config, lib native.Library, options ...tanker.Option) (*tanker.Core, error) {
	if f.identity == "" {
		return nil, errors.New("no identity: set -identity or TANKER_IDENTITY")
	}
	core, err := tanker.New(ctx, lib, tanker.OptionsFromConfig(cfg), options...)
	if err != nil {
		return nil, err
	}

	st, err := core.Start(ctx, f.identity)
	if err == nil {
		switch st {
		case tanker.StatusIdentityRegistrationNeeded:
			err = withPassphrase(f, func(p string) error {
				_, err := core.RegisterIdentity(ctx, tanker.PassphraseVerification(p), nil)
				return err
			})
		case tanker.StatusIdentityVerificationNeeded:
			err = withPassphrase(f, func(p string) error {
				_, err := core.VerifyIdentity(ctx, tanker.PassphraseVerification(p), nil)
				return err
			})
		}
	}
	if err != nil {
		_ = core.Close(context.WithoutCancel(ctx))
		return nil, err
	}
	return core, nil
}

func withPassphrase(f *flags, fn func(string) error) error {
	if f.passphrase != "" {
		return fn(f.passphrase)
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return errors.New("identity needs verification: set -passphrase")
	}
	fmt.Fprint(os.Stderr, "Passphrase: ")
	p, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("read passphrase: %w", err)
	}
	return fn(string(p))
}

func encryptionOptions(f *flags) *tanker.EncryptionOptions {
	opts := tanker.NewEncryptionOptions()
	opts.ShareWithUsers = splitList(f.shareUsers)
	opts.ShareWithGroups = splitList(f.shareGroups)
	switch f.padding {
	case 0:
		opts.Padding = tanker.PaddingAuto
	case 1:
		opts.Padding = tanker.PaddingOff
	default:
		opts.Padding = tanker.PaddingStep(uint32(f.padding))
	}
	return opts
}

func encrypt(ctx context.Context, f *flags, core *tanker.Core) error {
	s, err := core.EncryptStream(ctx, os.Stdin, encryptionOptions(f))
	if err != nil {
		return err
	}
	defer s.Close()

	out, flush := output(f)
	if _, err := io.Copy(out, s); err != nil {
		return err
	}
	return flush()
}

func decrypt(ctx context.Context, f *flags, core *tanker.Core) error {
	var in io.Reader = os.Stdin
	if f.base64 {
		in = base64.NewDecoder(base64.StdEncoding, in)
	}
	s, err := core.DecryptStream(ctx, in)
	if err != nil {
		return err
	}
	defer s.Close()

	_, err = io.Copy(os.Stdout, s)
	return err
}

// output returns where ciphertext goes. A terminal gets base64.
func output(f *flags) (io.Writer, func() error) {
	if !f.base64 && !term.IsTerminal(int(os.Stdout.Fd())) {
		return os.Stdout, func() error { return nil }
	}
	enc := base64.NewEncoder(base64.StdEncoding, os.Stdout)
	return enc, func() error {
		if err := enc.Close(); err != nil {
			return err
		}
		_, err := fmt.Fprintln(os.Stdout)
		return err
	}
}

func readInput(f *flags) ([]byte, error) {
	var in io.Reader = os.Stdin
	if f.base64 {
		in = base64.NewDecoder(base64.StdEncoding, in)
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return data, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
