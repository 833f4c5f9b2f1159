package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	appmatching "github.com/turtacn/BOMMesh/internal/application/matching"
	"github.com/turtacn/BOMMesh/internal/domain/matching"
	"github.com/turtacn/BOMMesh/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/BOMMesh/pkg/client"
	"github.com/turtacn/BOMMesh/pkg/errors"
)

// planFile is the on-disk plan: the scopes of one product and their model
// files.
type planFile struct {
	Components []appmatching.ComponentPlan `json:"components"`
	Product    *appmatching.ProductPlan    `json:"product,omitempty"`
}

// NewMatchCmd runs one hierarchical matching pass over local files.
func NewMatchCmd() *cobra.Command {
	var (
		bomPath    string
		planPath   string
		outPath    string
		noFallback bool
		serverURL  string
		token      string
	)

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Match a BOM against the assembly models of a plan",
		Long: "Reads BOM rows and a plan naming each component and the product with\n" +
			"their model files (.glb or .json part lists), runs the matcher per\n" +
			"scope and prints the report.",
		Example: "  bommesh match --bom bom.json --plan plan.json --out report.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			req, err := loadRunRequest(bomPath, planPath)
			if err != nil {
				return err
			}
			req.DisableFallback = noFallback

			ctx, cancel := cliCtx.WithTimeout(cmd.Context())
			defer cancel()

			var report *matching.Report
			if serverURL != "" {
				report, err = submitRemote(ctx, serverURL, token, req, cliCtx.Logger)
			} else {
				modelRoot := cliCtx.Config.Matching.ModelRoot
				if modelRoot == "" {
					modelRoot = filepath.Dir(planPath)
				}
				report, err = runLocal(ctx, cliCtx, modelRoot, req)
			}
			if err != nil {
				return err
			}

			if outPath != "" {
				if err := writeReport(outPath, report); err != nil {
					return err
				}
				cliCtx.Logger.Info("Report written", logging.String("path", outPath), logging.RunID(report.RunID.String()))
			}
			if cliCtx.OutputFormat == "json" {
				return printJSON(cmd, report)
			}
			return printText(cmd, reportTable{report})
		},
	}

	cmd.Flags().StringVar(&bomPath, "bom", "", "BOM rows as a JSON array (required)")
	cmd.Flags().StringVar(&planPath, "plan", "", "plan JSON with components and product (required)")
	cmd.Flags().StringVar(&outPath, "out", "", "write the full report JSON to this file")
	cmd.Flags().BoolVar(&noFallback, "no-fallback", false, "skip the model-assisted fallback")
	cmd.Flags().StringVar(&serverURL, "server", "", "submit to a running bommesh API instead of matching locally")
	cmd.Flags().StringVar(&token, "token", "", "bearer token for --server")
	_ = cmd.MarkFlagRequired("bom")
	_ = cmd.MarkFlagRequired("plan")

	return cmd
}

func runLocal(ctx context.Context, cliCtx *CLIContext, modelRoot string, req *appmatching.RunRequest) (*matching.Report, error) {
	rt, err := BuildRuntime(ctx, cliCtx.Config, modelRoot, cliCtx.Logger)
	if err != nil {
		return nil, err
	}
	defer rt.Close()
	return rt.Service.Run(ctx, req)
}

// submitRemote posts req to a server. Model paths in the plan resolve
// against the server's model root.
func submitRemote(ctx context.Context, serverURL, token string, req *appmatching.RunRequest, log logging.Logger) (*matching.Report, error) {
	opts := []client.Option{client.WithLogger(clientLogger{log})}
	if token != "" {
		opts = append(opts, client.WithToken(token))
	}
	c, err := client.NewClient(serverURL, opts...)
	if err != nil {
		return nil, err
	}
	return c.Runs().Submit(ctx, req)
}

// clientLogger adapts logging.Logger to the SDK's printf-style logger.
type clientLogger struct{ log logging.Logger }

func (l clientLogger) Debugf(format string, args ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, args...))
}

func (l clientLogger) Infof(format string, args ...interface{}) {
	l.log.Info(fmt.Sprintf(format, args...))
}

func (l clientLogger) Errorf(format string, args ...interface{}) {
	l.log.Error(fmt.Sprintf(format, args...))
}

// loadRunRequest reads the BOM and plan files. The BOM file may hold a bare
// array or an object with a "bom" array.
func loadRunRequest(bomPath, planPath string) (*appmatching.RunRequest, error) {
	bomData, err := os.ReadFile(bomPath)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrCodeInvalidBOM, "cannot read BOM file %s", bomPath)
	}
	var rows []matching.BOMRecord
	trimmed := bytes.TrimSpace(bomData)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapped struct {
			BOM []matching.BOMRecord `json:"bom"`
		}
		err = json.Unmarshal(trimmed, &wrapped)
		rows = wrapped.BOM
	} else {
		err = json.Unmarshal(trimmed, &rows)
	}
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrCodeInvalidBOM, "cannot decode BOM file %s", bomPath)
	}

	planData, err := os.ReadFile(planPath)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrCodeInvalidPlan, "cannot read plan file %s", planPath)
	}
	var plan planFile
	if err := json.Unmarshal(planData, &plan); err != nil {
		return nil, errors.Wrapf(err, errors.ErrCodeInvalidPlan, "cannot decode plan file %s", planPath)
	}

	return &appmatching.RunRequest{
		BOM:        rows,
		Components: plan.Components,
		Product:    plan.Product,
	}, nil
}

func writeReport(path string, report *matching.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode report")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, errors.ErrCodeInternal, "cannot write report to %s", path)
	}
	return nil
}

// reportTable renders one row per scope plus a totals row.
type reportTable struct{ r *matching.Report }

func (t reportTable) TableHeaders() []string {
	return []string{"SCOPE", "SOURCE", "BOM", "PARTS", "MATCHED", "CODE", "SPEC", "AI", "RATE", "NOTES"}
}

func (t reportTable) TableRows() [][]string {
	rows := make([][]string, 0, len(t.r.Components)+2)
	for _, sc := range t.r.Scopes() {
		rows = append(rows, []string{
			sc.Scope.String(),
			sc.Scope.SourceID,
			strconv.Itoa(sc.TotalBOM),
			strconv.Itoa(sc.TotalMeshParts),
			strconv.Itoa(sc.MatchedBOMCount),
			strconv.Itoa(sc.CodeMatchedCount),
			strconv.Itoa(sc.SpecMatchedCount),
			strconv.Itoa(sc.AIMatchedCount),
			formatRate(sc.MatchingRate),
			strings.Join(sc.Notes, "; "),
		})
	}
	s := t.r.Summary
	rows = append(rows, []string{
		"total", "",
		strconv.Itoa(s.TotalBOM), "",
		strconv.Itoa(s.MatchedBOM), "", "",
		strconv.Itoa(s.AIMatched),
		formatRate(s.MatchingRate),
		fmt.Sprintf("run %s", t.r.RunID),
	})
	return rows
}

func formatRate(r float64) string {
	return strconv.FormatFloat(r*100, 'f', 1, 64) + "%"
}
