package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"

	"paylink/go-client/internal/config"
	"paylink/go-client/internal/credstore"
	"paylink/go-client/internal/identity"
	"paylink/go-client/internal/platform/privacylog"
	"paylink/go-client/internal/platform/ratelimiter"
	"paylink/go-client/internal/rpc"
	"paylink/go-client/internal/securestore"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

const defaultIdentityLabel = "paylink"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "pair":
		runPair(os.Args[2:])
	case "call":
		runCall(os.Args[2:])
	case "-version", "--version", "version":
		fmt.Printf("paylink version=%s commit=%s build_date=%s\n", version, commit, buildDate)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `usage: paylink <command> [flags]

commands:
  pair    request an access token and print its approval pairing code
  call    perform an API call, signed when the facade requires it

run "paylink <command> -h" for the command's flags
`)
}

// commonFlags are shared by every subcommand.
type commonFlags struct {
	server     string
	configPath string
	dataDir    string
	insecure   bool
}

func registerCommon(fs *flag.FlagSet) *commonFlags {
	cf := &commonFlags{}
	fs.StringVar(&cf.server, "S", "", "server: live, test, host, or host:port")
	fs.StringVar(&cf.configPath, "config", "", "path to config.yaml (optional)")
	fs.StringVar(&cf.dataDir, "data-dir", "", "directory holding the credential store (optional)")
	fs.BoolVar(&cf.insecure, "k", false, "skip TLS certificate verification")
	return cf
}

// resolve merges flags over the loaded config and builds the shared pieces.
func (cf *commonFlags) resolve() (config.Config, *credstore.Store, *slog.Logger, error) {
	cfg, err := config.LoadFromPath(cf.configPath)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	if cf.server != "" {
		server, err := config.ParseServer(cf.server)
		if err != nil {
			return config.Config{}, nil, nil, err
		}
		cfg.Server = server
	}
	if cf.dataDir != "" {
		cfg.DataDir = cf.dataDir
	}
	if cf.insecure {
		cfg.Insecure = true
	}

	kv, err := credstore.NewFileKV(cfg.DataDir)
	if err != nil {
		return config.Config{}, nil, nil, err
	}

	level := slog.LevelInfo
	if strings.EqualFold(cfg.LogLevel, "debug") {
		level = slog.LevelDebug
	}
	handler := privacylog.WrapHandler(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return cfg, credstore.New(kv), slog.New(handler), nil
}

func (cf *commonFlags) newClient(cfg config.Config, logger *slog.Logger, opts ...rpc.Option) *rpc.Client {
	opts = append(opts,
		rpc.WithTransport(rpc.NewHTTPSTransport(0, cfg.Insecure)),
		rpc.WithLimiter(ratelimiter.New(4, 8, 0)),
		rpc.WithLogger(logger),
	)
	return rpc.New(cfg.Server.Host, cfg.Server.Port, opts...)
}

func runPair(args []string) {
	fs := flag.NewFlagSet("pair", flag.ExitOnError)
	cf := registerCommon(fs)
	facade := fs.String("F", "merchant", "facade to request")
	label := fs.String("L", defaultIdentityLabel, "label for the token and a fresh identity")
	fs.Parse(args)

	cfg, store, logger, err := cf.resolve()
	if err != nil {
		fatalf("pair: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ident, err := loadOrCreateIdentity(store, *label)
	if err != nil {
		fatalf("pair: %v", err)
	}

	client := cf.newClient(cfg, logger)
	token, err := rpc.Pair(ctx, client, store, ident, *facade, *label)
	if err != nil {
		fatalf("pair: %v", err)
	}
	fmt.Printf("pairing code: %s\n", token.PairingCode)
	fmt.Printf("approve it at: %s\n", rpc.ApprovalURL(cfg.Server.Host, cfg.Server.Port, token.PairingCode))
}

func runCall(args []string) {
	fs := flag.NewFlagSet("call", flag.ExitOnError)
	cf := registerCommon(fs)
	tokenFlag := fs.String("T", "", "access token (bypasses the store lookup)")
	clientID := fs.String("I", "", "identity fingerprint to sign with (with -T)")
	facade := fs.String("F", "", "facade to resolve a stored token for")
	resource := fs.String("R", "", "resource to disambiguate the token lookup")
	method := fs.String("M", "", "API method to invoke")
	params := fs.String("P", "", "params as a JSON object")
	fs.Parse(args)

	if *method == "" {
		fatalf("call: -M <method> is required")
	}

	cfg, store, logger, err := cf.resolve()
	if err != nil {
		fatalf("call: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var callParams map[string]any
	if *params != "" {
		if err := json.Unmarshal([]byte(*params), &callParams); err != nil {
			fatalf("call: -P is not a JSON object: %v", err)
		}
	}

	var opts []rpc.Option
	switch {
	case *facade == rpc.FacadePublic && *tokenFlag == "":
		// Unsigned, tokenless.
	case *tokenFlag != "":
		opts = append(opts, rpc.WithToken(*tokenFlag))
		if *clientID != "" {
			ident, err := openIdentity(store, *clientID)
			if err != nil {
				fatalf("call: %v", err)
			}
			opts = append(opts, rpc.WithIdentity(ident))
			defer persistNonce(store, ident, logger)
		}
	default:
		if *facade == "" {
			fatalf("call: provide -T <token> or -F <facade>")
		}
		token, err := store.GetToken(credstore.TokenQuery{Host: cfg.Server.Host, Facade: *facade, Resource: *resource})
		if err != nil {
			fatalf("call: %v", err)
		}
		ident, err := openIdentity(store, token.Identity)
		if err != nil {
			fatalf("call: %v", err)
		}
		opts = append(opts, rpc.WithToken(token.Token), rpc.WithIdentity(ident))
		defer persistNonce(store, ident, logger)
	}

	client := cf.newClient(cfg, logger, opts...)
	data, err := client.Call(ctx, *method, callParams)
	if err != nil {
		var remote *rpc.RemoteError
		if errors.As(err, &remote) {
			fatalf("call: server rejected %s: %s", *method, remote.Message)
		}
		fatalf("call: %v", err)
	}
	fmt.Println(string(data))
}

// loadOrCreateIdentity reuses the single stored identity, or generates and
// saves a fresh one. New identities get a passphrase prompt with
// confirmation; an empty passphrase stores the key in plaintext.
func loadOrCreateIdentity(store *credstore.Store, label string) (*identity.Identity, error) {
	ids, err := store.ListIdentityIDs()
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		return openIdentity(store, ids[0])
	}

	ident, err := identity.Generate(label)
	if err != nil {
		return nil, err
	}
	passphrase, err := promptNewPassphrase()
	if err != nil {
		return nil, err
	}
	if _, err := store.SaveIdentity(ident, passphrase); err != nil {
		return nil, err
	}
	fmt.Printf("new identity %s\n", ident.ID())
	return ident, nil
}

// openIdentity loads an identity, prompting for its passphrase only when the
// stored record is actually encrypted.
func openIdentity(store *credstore.Store, id string) (*identity.Identity, error) {
	if id == "" {
		return nil, credstore.ErrNotFound
	}
	ident, err := store.GetIdentity(id, "")
	if !errors.Is(err, securestore.ErrAuthFailed) {
		return ident, err
	}

	passphrase, err := promptPassphrase("passphrase: ")
	if err != nil {
		return nil, err
	}
	return store.GetIdentity(id, passphrase)
}

// persistNonce writes the advanced increment counter back after signed
// calls. Best effort: losing it only costs a larger nonce on reload.
func persistNonce(store *credstore.Store, ident *identity.Identity, logger *slog.Logger) {
	if ident.NonceStrategy() != identity.NonceIncrement {
		return
	}
	if _, err := saveIdentityKeepingMode(store, ident); err != nil {
		logger.Warn("nonce state not persisted", "err", err)
	}
}

// saveIdentityKeepingMode re-saves an identity without downgrading an
// encrypted record to plaintext: it re-prompts for the passphrase only when
// the record needs one.
func saveIdentityKeepingMode(store *credstore.Store, ident *identity.Identity) (saved bool, err error) {
	if _, err := store.GetIdentity(ident.ID(), ""); err == nil {
		_, err = store.SaveIdentity(ident, "")
		return err == nil, err
	} else if !errors.Is(err, securestore.ErrAuthFailed) {
		return false, err
	}
	passphrase, err := promptPassphrase("passphrase (to re-save identity state): ")
	if err != nil {
		return false, err
	}
	if _, err := store.GetIdentity(ident.ID(), passphrase); err != nil {
		return false, err
	}
	_, err = store.SaveIdentity(ident, passphrase)
	return err == nil, err
}

func promptNewPassphrase() (string, error) {
	first, err := promptPassphrase("passphrase (empty for plaintext storage): ")
	if err != nil {
		return "", err
	}
	if first == "" {
		return "", nil
	}
	second, err := promptPassphrase("repeat passphrase: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", errors.New("passphrases do not match")
	}
	return first, nil
}

func promptPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
