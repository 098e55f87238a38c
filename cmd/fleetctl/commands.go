package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-maintenance/internal/api"
	"github.com/ukydev/fleet-maintenance/internal/auth"
	"github.com/ukydev/fleet-maintenance/internal/handlers"
	"github.com/ukydev/fleet-maintenance/internal/inventory"
	"github.com/ukydev/fleet-maintenance/internal/layout"
	"github.com/ukydev/fleet-maintenance/internal/middleware"
	"github.com/ukydev/fleet-maintenance/internal/models"
	"github.com/ukydev/fleet-maintenance/internal/submission"
	"github.com/ukydev/fleet-maintenance/internal/workflow"
)

const loginTimeout = 5 * time.Minute

var errNoIdentityProvider = errors.New("OIDC_ISSUER (or COGNITO_REGION and COGNITO_DOMAIN) and OIDC_CLIENT_ID are required to sign in")

// stringList collects a repeatable string flag.
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func parseID(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, errors.New("expected exactly one id")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", args[0])
	}
	return id, nil
}

func photosFrom(paths []string) []submission.Photo {
	photos := make([]submission.Photo, 0, len(paths))
	for _, p := range paths {
		photos = append(photos, submission.Photo{Path: p})
	}
	return photos
}

func cmdLogin(ctx context.Context, a *app, args []string) error {
	if a.auth == nil {
		return errNoIdentityProvider
	}
	// A new sign-in always starts from a clean session.
	if err := a.session.SignOut(ctx); err != nil {
		log.WithError(err).Warn("Failed to clear previous session")
	}

	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", a.cfg.OIDCRedirectPort))
	if err != nil {
		return fmt.Errorf("failed to listen for the login callback: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, loginTimeout)
	defer cancel()
	flow := &handlers.LoginFlow{
		Service:  a.auth,
		Listener: listener,
		Open: func(authURL string) error {
			_, err := fmt.Fprintf(a.out, "Open this URL to sign in:\n\n  %s\n\n", authURL)
			return err
		},
	}
	tokens, err := flow.Run(ctx)
	if err != nil {
		return err
	}
	if err := a.session.SignInWithTokens(ctx, tokens, a.client); err != nil {
		return err
	}
	user, _ := a.session.User()
	fmt.Fprintf(a.out, "Signed in as %s (%s)\n", user.DisplayName(), user.Role)
	return nil
}

func cmdLogout(ctx context.Context, a *app, args []string) error {
	if err := a.session.SignOut(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Signed out")
	if a.auth != nil {
		fmt.Fprintf(a.out, "To end the hosted login session too, open:\n\n  %s\n", a.auth.LogoutURL(a.auth.RedirectURL()))
	}
	return nil
}

func cmdWhoami(ctx context.Context, a *app, args []string) error {
	user, _ := a.session.User()
	out := struct {
		User     models.User      `json:"user"`
		Features []models.Feature `json:"features"`
		Claims   *models.Claims   `json:"claims,omitempty"`
		Expired  bool             `json:"token_expired"`
	}{User: user, Features: a.session.Features()}

	claims, err := auth.ParseIDToken(a.session.Token(middleware.IDToken))
	if err != nil {
		log.WithError(err).Debug("Identity token is not a readable JWT")
	} else {
		out.Claims = claims
		if a.auth != nil {
			out.Expired = errors.Is(a.auth.CheckExpiry(claims), auth.ErrExpiredToken)
		}
	}
	return printJSON(a.out, out)
}

func cmdFeatures(ctx context.Context, a *app, args []string) error {
	for _, f := range a.session.Features() {
		fmt.Fprintln(a.out, f)
	}
	return nil
}

func cmdBuses(ctx context.Context, a *app, args []string) error {
	buses, err := a.client.Buses(ctx)
	if err != nil {
		return err
	}
	for _, b := range buses {
		fmt.Fprintf(a.out, "%-10s %s\n", b.ID, b.Label())
	}
	return nil
}

func cmdSubmit(ctx context.Context, a *app, args []string) error {
	fs := newFlags("submit")
	var photos stringList
	reportType := fs.String("type", string(models.ReportProblem), "problem, repair or accident")
	bus := fs.String("bus", "", "vehicle code")
	desc := fs.String("desc", "", "what happened")
	severity := fs.String("severity", string(models.SeverityMedium), "low, medium, high or critical")
	location := fs.String("location", "", "where the vehicle is")
	lat := fs.Float64("lat", 0, "latitude")
	lng := fs.Float64("lng", 0, "longitude")
	retries := fs.Int("retries", 0, "resume failed uploads this many times")
	prompt := fs.Bool("prompt", false, "print the description hint for -type and exit")
	fs.Var(&photos, "photo", "photo path (repeatable, in order)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rt := models.NormalizeReportType(*reportType)
	if *prompt {
		fmt.Fprintf(a.out, "%s: %s\n", rt.Label(), rt.DescriptionPrompt())
		return nil
	}

	draft := submission.Draft{
		Type:        rt,
		Vehicle:     *bus,
		Description: *desc,
		Severity:    models.Severity(strings.ToLower(*severity)),
		Location:    models.Location{Description: *location},
		Photos:      photosFrom(photos),
	}
	if *lat != 0 || *lng != 0 {
		draft.Location = models.NewCoordinate(*location, *lat, *lng)
	}

	id, err := submitWithRetries(ctx, a.workflow, draft, *retries)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Report %d submitted with %d photo(s)\n", id, len(photos))
	return nil
}

// reportFiler submits reports and resumes journaled submissions.
type reportFiler interface {
	SubmitReport(ctx context.Context, draft submission.Draft) (int64, error)
	RetrySubmission(ctx context.Context, id string) (*submission.Submission, error)
}

// submitWithRetries files draft and resumes it through the journal up to
// retries times. Resumes reuse the journaled idempotency key, so a create
// that reached the backend is not filed twice.
func submitWithRetries(ctx context.Context, f reportFiler, draft submission.Draft, retries int) (int64, error) {
	id, err := f.SubmitReport(ctx, draft)
	for attempt := 0; attempt < retries; attempt++ {
		subID := resumableID(err)
		if subID == "" {
			break
		}
		log.WithFields(log.Fields{"submission": subID, "attempt": attempt + 1}).Warn(err.Error())
		sub, rerr := f.RetrySubmission(ctx, subID)
		if sub != nil && sub.TargetID != 0 {
			id = sub.TargetID
		}
		err = rerr
	}
	subID := resumableID(err)
	switch {
	case subID != "" && id != 0:
		return id, fmt.Errorf("report %d created but %w; resume with: fleetctl retry %s", id, err, subID)
	case subID != "":
		return 0, fmt.Errorf("%w; resume with: fleetctl retry %s", err, subID)
	}
	return id, err
}

// resumableID is the journal id carried by a create or upload failure.
func resumableID(err error) string {
	var uerr *submission.UploadError
	if errors.As(err, &uerr) {
		return uerr.SubmissionID
	}
	var cerr *submission.CreateError
	if errors.As(err, &cerr) {
		return cerr.SubmissionID
	}
	return ""
}

func cmdRetry(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		pending, err := a.orch.Pending(ctx)
		if err != nil {
			return err
		}
		for _, s := range pending {
			fmt.Fprintf(a.out, "%s  %-6s target=%d  confirmed %d/%d  resume at %d\n",
				s.ID, s.Kind, s.TargetID, s.ConfirmedCount(), len(s.Photos), s.FirstUnconfirmed())
		}
		return nil
	}
	sub, err := a.workflow.RetrySubmission(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s %d: %d photo(s) confirmed\n", sub.Kind, sub.TargetID, sub.ConfirmedCount())
	return nil
}

func cmdReports(ctx context.Context, a *app, args []string) error {
	fs := newFlags("reports")
	status := fs.String("status", "", "pending, open or closed")
	mine := fs.Bool("mine", false, "only reports I filed")
	reportType := fs.String("type", "", "problem, repair or accident")
	queue := fs.Bool("queue", false, "pending reports awaiting review, newest first")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *queue {
		reports, err := a.workflow.ReviewQueue(ctx)
		if err != nil {
			return err
		}
		return printJSON(a.out, reports)
	}

	params := api.ListReportsParams{Mine: *mine}
	if *status != "" {
		params.Status = models.Status(*status)
	}
	if *reportType != "" {
		params.Type = models.NormalizeReportType(*reportType)
	}
	reports, err := a.client.ListReports(ctx, params)
	if err != nil {
		return err
	}
	return printJSON(a.out, reports)
}

func cmdApprove(ctx context.Context, a *app, args []string) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}
	r, err := a.workflow.Approve(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Report %d approved, job %d opened\n", r.ID, r.JobID)
	return nil
}

func cmdDecline(ctx context.Context, a *app, args []string) error {
	fs := newFlags("decline")
	reason := fs.String("reason", "", "why the report is declined (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := parseID(fs.Args())
	if err != nil {
		return err
	}
	r, err := a.workflow.Decline(ctx, id, *reason)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Report %d declined: %s\n", r.ID, r.Audit.Reason)
	return nil
}

func cmdJobs(ctx context.Context, a *app, args []string) error {
	fs := newFlags("jobs")
	reportID := fs.Int64("report", 0, "show one job by report id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *reportID > 0 {
		r, mode, err := a.workflow.Job(ctx, *reportID)
		if err != nil {
			return err
		}
		return printJSON(a.out, struct {
			Mode   string        `json:"mode"`
			Report models.Report `json:"report"`
		}{Mode: string(mode), Report: r})
	}
	board, err := a.workflow.TechnicianBoard(ctx)
	if err != nil {
		return err
	}
	return printJSON(a.out, board)
}

func cmdAccept(ctx context.Context, a *app, args []string) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}
	r, err := a.workflow.Accept(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Job %d accepted by %s\n", r.JobID, r.Assigned)
	return nil
}

func cmdUpdate(ctx context.Context, a *app, args []string) error {
	fs := newFlags("update")
	var add, dec, drop, photos stringList
	work := fs.String("work", "", "work performed")
	search := fs.String("search", "", "search the parts catalog and exit")
	fs.Var(&add, "part", "add a part: <part-id>[:qty] (repeatable)")
	fs.Var(&dec, "dec", "decrement a part by one (repeatable)")
	fs.Var(&drop, "drop", "remove a part (repeatable)")
	fs.Var(&photos, "photo", "after photo path (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	catalog, err := a.client.Parts(ctx, 0)
	if err != nil {
		return err
	}
	if *search != "" {
		for _, p := range inventory.SearchCatalog(catalog, *search) {
			fmt.Fprintf(a.out, "%-8s %-12s %-30s stock %d\n", p.ID, p.Code, p.Name, p.Stock)
		}
		return nil
	}

	id, err := parseID(fs.Args())
	if err != nil {
		return err
	}
	update := workflow.JobUpdate{Photos: photosFrom(photos)}
	if *work != "" {
		update.WorkPerformed = work
	}
	if len(add)+len(dec)+len(drop) > 0 {
		current, _, err := a.workflow.Job(ctx, id)
		if err != nil {
			return err
		}
		used, err := editPartsUsed(current.PartsUsed, catalog, add, dec, drop)
		if err != nil {
			return err
		}
		update.PartsUsed = used
	}

	r, err := a.workflow.UpdateJob(ctx, id, update)
	if err != nil {
		return err
	}
	return printJSON(a.out, r)
}

// editPartsUsed applies the parts-used editor actions in order: adds, then
// decrements, then removals.
func editPartsUsed(used []models.PartUsed, catalog []models.Part, add, dec, drop []string) ([]models.PartUsed, error) {
	out := append([]models.PartUsed{}, used...)
	for _, entry := range add {
		partID, qty, err := parsePartEntry(entry)
		if err != nil {
			return nil, err
		}
		part, ok := inventory.Find(catalog, partID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", inventory.ErrPartNotFound, partID)
		}
		for i := 0; i < qty; i++ {
			out = inventory.AddUsed(out, part)
		}
	}
	for _, partID := range dec {
		out = inventory.DecrementUsed(out, partID)
	}
	for _, partID := range drop {
		out = inventory.RemoveUsed(out, partID)
	}
	for _, over := range inventory.ExceedsStock(out, catalog) {
		log.WithFields(log.Fields{"part_id": over.PartID, "qty": over.Qty}).Warn("Quantity exceeds current stock")
	}
	return out, nil
}

func parsePartEntry(entry string) (string, int, error) {
	partID, qtyText, found := strings.Cut(entry, ":")
	partID = strings.TrimSpace(partID)
	if partID == "" {
		return "", 0, fmt.Errorf("invalid part %q", entry)
	}
	if !found {
		return partID, 1, nil
	}
	qty, err := strconv.Atoi(qtyText)
	if err != nil || qty < 1 {
		return "", 0, fmt.Errorf("invalid quantity in %q", entry)
	}
	return partID, qty, nil
}

func cmdComplete(ctx context.Context, a *app, args []string) error {
	fs := newFlags("complete")
	var photos stringList
	fs.Var(&photos, "photo", "after photo path (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := parseID(fs.Args())
	if err != nil {
		return err
	}
	r, err := a.workflow.Complete(ctx, id, photosFrom(photos))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Job %d closed with %d after photo(s)\n", r.JobID, len(r.AfterPhotos))
	return nil
}

func cmdParts(ctx context.Context, a *app, args []string) error {
	fs := newFlags("parts")
	tab := fs.String("tab", string(inventory.TabAll), "all, low or recent")
	query := fs.String("q", "", "search code, name or category")
	width := fs.Float64("width", 1024, "window width used to size the table")
	if err := fs.Parse(args); err != nil {
		return err
	}
	view, err := a.workflow.Inventory(ctx, inventory.Tab(*tab), *query)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Parts %d  Low %d  Value %s  (all %d / low %d / recent %d)\n\n",
		view.Stats.TotalParts, view.Stats.LowStockCount, inventory.Money(view.Stats.TotalValue),
		view.Counts.All, view.Counts.Low, view.Counts.Recent)

	table := layout.InventoryTable(*width)
	for _, p := range view.Parts {
		low := ""
		if p.IsLowStock() {
			low = "LOW"
		}
		cells := []string{p.Code, p.Name, p.Category, strconv.Itoa(p.Stock), strconv.Itoa(p.MinStock),
			inventory.Money(p.UnitPrice), low, p.UpdatedAt.Format("2006-01-02")}
		fmt.Fprintln(a.out, formatRow(table, cells))
	}
	return nil
}

// formatRow pads each cell to its column width at roughly 8 px per character.
func formatRow(table layout.Table, cells []string) string {
	var b strings.Builder
	for i, col := range layout.InventoryColumns {
		if i >= len(cells) {
			break
		}
		c := cells[i]
		chars := int(table.Widths[col.Key] / 8)
		if chars < 1 {
			chars = 1
		}
		if len(c) > chars {
			c = c[:chars]
		}
		fmt.Fprintf(&b, "%-*s ", chars, c)
	}
	return strings.TrimRight(b.String(), " ")
}

func cmdStock(ctx context.Context, a *app, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: stock <part-id> add|remove")
	}
	var delta int
	switch args[1] {
	case "add":
		delta = 1
	case "remove":
		delta = -1
	default:
		return fmt.Errorf("unknown stock action %q", args[1])
	}
	adj, err := a.workflow.AdjustStock(ctx, args[0], delta)
	if err != nil {
		return err
	}
	if adj.Removed {
		fmt.Fprintf(a.out, "%s removed from the list\n", adj.Part.Code)
	} else {
		fmt.Fprintf(a.out, "%s stock %d (min %d)\n", adj.Part.Code, adj.Part.Stock, adj.Part.MinStock)
	}
	fmt.Fprintf(a.out, "Parts %d  Low %d  Value %s\n", adj.Stats.TotalParts, adj.Stats.LowStockCount, inventory.Money(adj.Stats.TotalValue))
	return nil
}

func cmdLayout(ctx context.Context, a *app, args []string) error {
	fs := newFlags("layout")
	width := fs.Float64("width", 390, "viewport width")
	height := fs.Float64("height", 844, "viewport height")
	if err := fs.Parse(args); err != nil {
		return err
	}
	v := layout.Viewport{Width: *width, Height: *height}
	return printJSON(a.out, struct {
		Inventory layout.Table `json:"inventory_table"`
		Roles     layout.Grid  `json:"role_grid"`
		Projects  layout.Grid  `json:"project_grid"`
	}{
		Inventory: layout.InventoryTable(*width),
		Roles:     layout.CardGrid(v, layout.RoleGrid),
		Projects:  layout.CardGrid(v, layout.ProjectGrid),
	})
}
