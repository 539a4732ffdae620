// Command arena is a terminal client for the arena identity server. Each
// invocation is one client load: it restores the session from local storage,
// resolves a pasted OAuth callback if given one, and runs a single command.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/sumire/arena/internal/auth"
	"github.com/sumire/arena/internal/client"
	"github.com/sumire/arena/internal/config"
	"github.com/sumire/arena/internal/domain"
	"github.com/sumire/arena/internal/identity"
	"github.com/sumire/arena/internal/onboarding"
	"github.com/sumire/arena/internal/storage"
)

const usage = `usage: arena <command> [args]

commands:
  status                      show the current session
  login <email>               sign in, password is read from stdin
  register <email> <name>     create an account, password is read from stdin
  google | github             start provider sign-in
  callback <url>              finish provider sign-in with the address the browser landed on
  link <handle>               link your competitive-programming account
  logout                      sign out
`

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "arena:", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("arena", flag.ContinueOnError)
	fs.Usage = func() { fmt.Fprint(fs.Output(), usage) }
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("missing command")
	}
	cmd, rest := fs.Arg(0), fs.Args()[1:]

	cfg, err := config.LoadClient()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := slog.LevelWarn
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	store, closeStore, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	address := strings.SplitN(cfg.CallbackURL, "?", 2)[0]
	if cmd == "callback" {
		if len(rest) != 1 {
			return errors.New("callback needs the URL the browser landed on")
		}
		address = rest[0]
	}
	loc, err := client.NewLocation(address)
	if err != nil {
		return fmt.Errorf("parse address: %w", err)
	}

	app := client.New(auth.Deps{
		Identity:      identity.NewClient(cfg.ServerURL),
		Storage:       store,
		Location:      loc,
		Redirector:    &printRedirector{out: stdout},
		Logger:        logger,
		LogoutTimeout: cfg.LogoutTimeout,
	})
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startErr := app.Start(ctx)

	c := &cli{app: app, loc: loc, in: bufio.NewReader(stdin), out: stdout}
	switch cmd {
	case "status":
		if startErr != nil {
			logger.Warn("session restore failed", "error", startErr)
		}
		c.printSession()
		return nil
	case "callback":
		c.printSession()
		return startErr
	case "login":
		return c.login(ctx, rest)
	case "register":
		return c.register(ctx, rest)
	case "google":
		return c.app.Facade.InitiateGoogleAuth(ctx)
	case "github":
		return c.app.Facade.InitiateGitHubAuth(ctx)
	case "link":
		return c.link(ctx, rest)
	case "logout":
		if err := c.app.Facade.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "signed out")
		return nil
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func openStorage(cfg config.ClientConfig) (storage.Storage, func(), error) {
	if cfg.RedisURL == "" {
		return storage.NewFile(cfg.StoragePath), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse ARENA_REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	return storage.NewRedis(rdb, cfg.RedisNamespace, cfg.RedisTTL), func() { _ = rdb.Close() }, nil
}

// printRedirector asks the user to open the consent page themselves.
type printRedirector struct {
	out io.Writer
}

func (r *printRedirector) Redirect(_ context.Context, target string) error {
	_, err := fmt.Fprintf(r.out, "Open this address in your browser to continue:\n\n  %s\n\nThen run: arena callback <address you land on>\n", target)
	return err
}

// printNavigator reports route changes the onboarding gate makes.
type printNavigator struct {
	loc *client.Location
	out io.Writer
}

func (n *printNavigator) Navigate(route string) {
	n.loc.Navigate(route)
	fmt.Fprintf(n.out, "-> %s\n", route)
}

type cli struct {
	app *client.App
	loc *client.Location
	in  *bufio.Reader
	out io.Writer
}

func (c *cli) login(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("login needs an email")
	}
	password, err := c.readPassword()
	if err != nil {
		return err
	}
	if err := c.app.Facade.Login(ctx, domain.Credentials{Email: args[0], Password: password}); err != nil {
		return err
	}
	c.printSession()
	return nil
}

func (c *cli) register(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("register needs an email and a display name")
	}
	password, err := c.readPassword()
	if err != nil {
		return err
	}
	profile := domain.Profile{Email: args[0], DisplayName: strings.Join(args[1:], " "), Password: password}
	if err := c.app.Facade.Register(ctx, profile); err != nil {
		return err
	}
	c.printSession()
	return nil
}

func (c *cli) link(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("link needs your handle")
	}

	gate := c.app.OnboardingGate(&printNavigator{loc: c.loc, out: c.out}, onboarding.DefaultRoutes)
	gate.Mount()
	defer gate.Unmount()

	if err := gate.Submit(ctx, args[0]); err != nil {
		return err
	}
	c.printSession()
	return nil
}

func (c *cli) readPassword() (string, error) {
	fmt.Fprint(c.out, "password: ")
	line, err := c.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *cli) printSession() {
	s := c.app.Facade.Session()
	fmt.Fprintf(c.out, "status: %s\n", s.Status)
	if s.PendingProvider != "" {
		fmt.Fprintf(c.out, "waiting for: %s\n", s.PendingProvider)
	}
	if s.User != nil {
		fmt.Fprintf(c.out, "user: %s <%s>\n", s.User.DisplayName, s.User.Email)
		if la := s.User.LinkedAccount; la != nil {
			fmt.Fprintf(c.out, "linked: %s (verified: %t)\n", la.ExternalUsername, la.Verified)
		}
	}
	if s.Error != nil {
		fmt.Fprintf(c.out, "error: %s: %s\n", s.Error.Kind, s.Error.Message)
	}
	if s.Status == domain.StatusOnboardingRequired {
		fmt.Fprintln(c.out, "next: arena link <handle>")
	}
}
