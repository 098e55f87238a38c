package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-maintenance/internal/api"
	"github.com/ukydev/fleet-maintenance/internal/auth"
	"github.com/ukydev/fleet-maintenance/internal/config"
	"github.com/ukydev/fleet-maintenance/internal/db"
	"github.com/ukydev/fleet-maintenance/internal/events"
	"github.com/ukydev/fleet-maintenance/internal/inventory"
	"github.com/ukydev/fleet-maintenance/internal/session"
	"github.com/ukydev/fleet-maintenance/internal/submission"
	"github.com/ukydev/fleet-maintenance/internal/workflow"
)

// app wires the collaborators every command uses.
type app struct {
	cfg      *config.Config
	client   *api.Client
	session  *session.Session
	auth     *auth.Service
	orch     *submission.Orchestrator
	workflow *workflow.Service
	out      io.Writer
	closers  []func()
}

type command struct {
	usage    string
	signedIn bool
	run      func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"login":    {usage: "sign in through the hosted login page", run: cmdLogin},
	"logout":   {usage: "sign out and forget stored tokens", run: cmdLogout},
	"whoami":   {usage: "show the signed-in user and token claims", signedIn: true, run: cmdWhoami},
	"features": {usage: "list the features your role can open", signedIn: true, run: cmdFeatures},
	"buses":    {usage: "list vehicles reports can be filed against", signedIn: true, run: cmdBuses},
	"submit":   {usage: "file a report with photos", signedIn: true, run: cmdSubmit},
	"retry":    {usage: "list or resume unfinished submissions", signedIn: true, run: cmdRetry},
	"reports":  {usage: "list reports (-queue for the review queue)", signedIn: true, run: cmdReports},
	"approve":  {usage: "approve a pending report: approve <report-id>", signedIn: true, run: cmdApprove},
	"decline":  {usage: "decline a pending report: decline -reason <text> <report-id>", signedIn: true, run: cmdDecline},
	"jobs":     {usage: "show the technician board, or one job with -report <id>", signedIn: true, run: cmdJobs},
	"accept":   {usage: "accept an open job: accept <report-id>", signedIn: true, run: cmdAccept},
	"update":   {usage: "record work, parts and photos on your job", signedIn: true, run: cmdUpdate},
	"complete": {usage: "close your job: complete -photo <path> <report-id>", signedIn: true, run: cmdComplete},
	"parts":    {usage: "show inventory (-tab all|low|recent, -q search)", signedIn: true, run: cmdParts},
	"stock":    {usage: "adjust stock: stock <part-id> add|remove", signedIn: true, run: cmdStock},
	"layout":   {usage: "compute table columns and card grids for a viewport", run: cmdLayout},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		usage(stderr)
		return 2
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
		usage(stderr)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	cfg.ConfigureLogging()

	a, err := newApp(ctx, cfg, stdout)
	if err != nil {
		log.WithError(err).Error("Failed to start")
		return 1
	}
	defer a.close()

	if cmd.signedIn {
		if err := a.session.Bootstrap(ctx, a.client); err != nil {
			if errors.Is(err, session.ErrNotSignedIn) {
				fmt.Fprintln(stderr, "not signed in; run: fleetctl login")
			} else {
				fmt.Fprintln(stderr, err)
			}
			return 1
		}
	}

	if err := cmd.run(ctx, a, args[1:]); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: fleetctl <command> [flags] [args]")
	fmt.Fprintln(w)
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-9s %s\n", name, commands[name].usage)
	}
}

func newApp(ctx context.Context, cfg *config.Config, out io.Writer) (*app, error) {
	a := &app{cfg: cfg, out: out}

	// Settings are validated before any connection is opened.
	mode, err := inventory.ParseRemoveMode(cfg.InventoryRemoveMode)
	if err != nil {
		return nil, err
	}

	var store session.TokenStore
	fileStore, err := session.NewFileStore(cfg.TokenStorePath, cfg.TokenStorePassphrase)
	if err != nil {
		log.WithError(err).Warn("Token store disabled, sign-in lasts for this process only")
		store = session.NewMemoryStore()
	} else {
		store = fileStore
	}

	var sessionOpts []session.Option
	if cfg.OIDCIssuer != "" && cfg.OIDCClientID != "" {
		a.auth, err = auth.NewService(auth.Config{
			Issuer:      cfg.OIDCIssuer,
			ClientID:    cfg.OIDCClientID,
			RedirectURL: fmt.Sprintf("http://127.0.0.1:%d/callback", cfg.OIDCRedirectPort),
			Scopes:      cfg.OIDCScopes,
		})
		if err != nil {
			return nil, err
		}
		sessionOpts = append(sessionOpts, session.WithRevoker(a.auth))
	}
	a.session = session.New(store, sessionOpts...)

	httpClient := api.NewAuthorizedHTTPClient(a.session, a.session.HandleUnauthorized, cfg.HTTPTimeout)
	a.client = api.NewClient(cfg.APIBaseURL, api.WithHTTPClient(httpClient))

	var journal submission.Journal
	if cfg.MongoURI != "" {
		mongoClient, err := db.ConnectMongo(cfg.MongoURI)
		if err != nil {
			log.WithError(err).Warn("Submission journal kept in memory")
		} else {
			coll := db.NewMongoSubmissionCollection(mongoClient, cfg.MongoDB)
			if err := coll.EnsureIndexes(ctx); err != nil {
				log.WithError(err).Warn("Failed to create submission indexes")
			}
			journal = coll
			a.closers = append(a.closers, func() { _ = mongoClient.Disconnect(context.Background()) })
		}
	}
	a.orch = submission.NewOrchestrator(a.client, journal)

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.MQTTBroker != "" {
		p, err := events.NewMQTTPublisher(cfg.MQTTBroker, cfg.MQTTClientID, cfg.MQTTTopicPrefix)
		if err != nil {
			log.WithError(err).Warn("Events will not be published")
		} else {
			publisher = p
			a.closers = append(a.closers, p.Close)
		}
	}

	a.workflow = workflow.NewService(a.client, a.session, a.orch,
		workflow.WithPublisher(publisher),
		workflow.WithRemoveMode(mode),
	)
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
