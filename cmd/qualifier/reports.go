package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pavelanni/qualifier/internal/auth"
	"github.com/pavelanni/qualifier/internal/catalog"
	"github.com/pavelanni/qualifier/internal/flow"
	"github.com/pavelanni/qualifier/internal/model"
	"github.com/pavelanni/qualifier/internal/scoring"
)

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all sessions as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	addBackendFlags(f)
	addCatalogFlag(f)
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(f)
	return cmd
}

func scoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score FILE",
		Short: "Score a responses file (YAML or JSON map of question id to answer)",
		Args:  cobra.ExactArgs(1),
		RunE:  runScore,
	}
	f := cmd.Flags()
	addCatalogFlag(f)
	f.Bool("json", false, "Print the breakdown as JSON")
	addLogFlags(f)
	return cmd
}

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [CATALOG]",
		Short: "Validate a question catalog (default: the built-in catalog)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runValidate,
	}
	addLogFlags(cmd.Flags())
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token USER_ID",
		Short: "Issue a respondent bearer token",
		Args:  cobra.ExactArgs(1),
		RunE:  runToken,
	}
	f := cmd.Flags()
	f.String("token-secret", "", "HMAC secret for respondent tokens (or set QUALIFIER_TOKEN_SECRET)")
	f.Duration("token-ttl", 30*24*time.Hour, "Token lifetime")
	addLogFlags(f)
	return cmd
}

func leadsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leads",
		Short: "List leads, most recently active first",
		RunE:  runLeads,
	}
	f := cmd.Flags()
	addBackendFlags(f)
	f.String("status", "", "Filter by status (in_progress, completed, abandoned)")
	f.String("temperature", "", "Filter by temperature (hot, warm, qualified, cool, early)")
	f.Int("limit", 50, "Maximum number of leads (0 = all)")
	addLogFlags(f)
	return cmd
}

func staleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stale",
		Short: "Report in-progress sessions inactive for too long (read-only)",
		RunE:  runStale,
	}
	f := cmd.Flags()
	addBackendFlags(f)
	f.Duration("older-than", 72*time.Hour, "Inactivity threshold")
	addLogFlags(f)
	return cmd
}

func hashPasswordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash-password [PASSWORD]",
		Short: "Print the bcrypt hash to use as --admin-hash (reads stdin without an argument)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runHashPassword,
	}
	addLogFlags(cmd.Flags())
	return cmd
}

var temperatureColors = map[model.Temperature]*color.Color{
	model.TemperatureHot:       color.New(color.FgRed, color.Bold),
	model.TemperatureWarm:      color.New(color.FgYellow, color.Bold),
	model.TemperatureQualified: color.New(color.FgGreen),
	model.TemperatureCool:      color.New(color.FgCyan),
	model.TemperatureEarly:     color.New(color.Faint),
}

func colorTemperature(t model.Temperature) string {
	if t == "" {
		return "-"
	}
	if c, ok := temperatureColors[t]; ok {
		return c.Sprint(string(t))
	}
	return string(t)
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output file: %w", err)
	}
	return f, func() { f.Close() }, nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := context.Background()

	cat, err := loadCatalog(v.GetString("catalog"))
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	backend, _, closeBackend, err := openBackend(ctx, v)
	if err != nil {
		return err
	}
	defer closeBackend()

	results, err := backend.ExportAllSessions(ctx, cat)
	if err != nil {
		return fmt.Errorf("export sessions: %w", err)
	}

	export := model.LeadExport{
		ExportedAt:     time.Now().UTC(),
		CatalogVersion: cat.Version,
		NumLeads:       len(results),
		Leads:          results,
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	w, done, err := openOutput(v.GetString("output"))
	if err != nil {
		return err
	}
	defer done()

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	_, _ = fmt.Fprintln(w)
	slog.Info("exported sessions", "count", len(results))
	return nil
}

// readResponses parses a responses file. YAML is a superset of JSON, so one
// decoder covers both.
func readResponses(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var values map[string]any
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return values, nil
}

// scoreResponses scores the answers on the path they resolve to and reports
// the rest as off-path.
func scoreResponses(cat *catalog.Catalog, values map[string]any) (model.ScoreBreakdown, []scoring.Anomaly) {
	seq := flow.Resolve(cat, values)
	onPath := make(map[string]any, len(values))
	var anomalies []scoring.Anomaly
	for id, v := range values {
		if flow.Contains(seq, id) {
			onPath[id] = v
		} else if cat.Has(id) {
			anomalies = append(anomalies, scoring.Anomaly{QuestionID: id, Reason: "not on the resolved path"})
		} else {
			onPath[id] = v // reported by Analyze as unknown
		}
	}
	slices.SortFunc(anomalies, func(a, b scoring.Anomaly) int {
		return strings.Compare(a.QuestionID, b.QuestionID)
	})
	b, more := scoring.Analyze(cat, onPath)
	return b, append(more, anomalies...)
}

func runScore(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	cat, err := loadCatalog(v.GetString("catalog"))
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	values, err := readResponses(args[0])
	if err != nil {
		return err
	}
	b, anomalies := scoreResponses(cat, values)

	out := cmd.OutOrStdout()
	if v.GetBool("json") {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			model.ScoreBreakdown
			Anomalies []scoring.Anomaly `json:"anomalies,omitempty"`
		}{b, anomalies})
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, c := range model.Categories {
		fmt.Fprintf(tw, "%s\t%d/%d\n", c, b.Get(c), scoring.Ceiling(c))
	}
	fmt.Fprintf(tw, "total\t%d/%d\t%s\n", b.Total, scoring.MaxTotal, colorTemperature(b.Temperature))
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, a := range anomalies {
		fmt.Fprintf(out, "%s %s: %s\n", color.YellowString("ignored"), a.QuestionID, a.Reason)
	}
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)

	path := ""
	if len(args) == 1 {
		path = args[0]
	}
	cat, err := loadCatalog(path)
	if err != nil {
		return fmt.Errorf("%s %w", color.RedString("invalid:"), err)
	}
	name := path
	if name == "" {
		name = "built-in catalog"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s: version %s, %d questions\n",
		color.GreenString("ok"), name, cat.Version, cat.Len())
	return nil
}

func runToken(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	tokens, err := auth.NewTokens(v.GetString("token-secret"), v.GetDuration("token-ttl"))
	if err != nil {
		return err
	}
	tok, err := tokens.Issue(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), tok)
	return nil
}

func printLeads(out io.Writer, sessions []model.Session, statusOverride model.SessionStatus) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USER\tSTATUS\tSCORE\tTEMPERATURE\tANSWERS\tLAST ACTIVITY")
	for _, s := range sessions {
		status := s.Status
		if statusOverride != "" {
			status = statusOverride
		}
		score := "-"
		if s.Score != nil {
			score = fmt.Sprint(*s.Score)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			s.UserID, status, score, colorTemperature(s.Temperature()),
			len(s.Responses), s.UpdatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func runLeads(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := context.Background()

	backend, _, closeBackend, err := openBackend(ctx, v)
	if err != nil {
		return err
	}
	defer closeBackend()

	sessions, err := backend.ListSessions(ctx, model.SessionFilter{
		Status:      model.SessionStatus(v.GetString("status")),
		Temperature: model.Temperature(v.GetString("temperature")),
		Limit:       v.GetInt("limit"),
	})
	if err != nil {
		return fmt.Errorf("list leads: %w", err)
	}
	return printLeads(cmd.OutOrStdout(), sessions, "")
}

// runStale lists in-progress sessions older than the threshold as abandoned.
// Stored sessions are left untouched.
func runStale(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := context.Background()

	olderThan := v.GetDuration("older-than")
	if olderThan <= 0 {
		return errors.New("--older-than must be positive")
	}

	backend, _, closeBackend, err := openBackend(ctx, v)
	if err != nil {
		return err
	}
	defer closeBackend()

	sessions, err := backend.ListStale(ctx, time.Now().UTC().Add(-olderThan))
	if err != nil {
		return fmt.Errorf("list stale sessions: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "no sessions inactive for more than %s\n", olderThan)
		return nil
	}
	return printLeads(cmd.OutOrStdout(), sessions, model.StatusAbandoned)
}

func runHashPassword(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)

	var password string
	if len(args) == 1 {
		password = args[0]
	} else {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		return errors.New("empty password")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), hash)
	return nil
}
