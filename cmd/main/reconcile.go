package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"cellar-service/internal/reconcile/model"
	"cellar-service/internal/reconcile/session"
)

var (
	applyFlag     bool
	thresholdFlag float64
	keepYearsFlag bool
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile <file>",
	Short: "Match a supplier price list against the catalog",
	Long: "Reads a CSV, XLS or XLSX price list, matches it against the catalog and prints\n" +
		"both buckets. With --apply every matched row is written as the new cost.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		opts, err := matchOptions(cfg.MatchOptions(), cmd.Flags().Changed("threshold"))
		if err != nil {
			return err
		}
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		s := session.New(session.Deps{
			Catalog: store,
			Writer:  store,
			Creator: store,
			Audit:   store,
			Options: opts,
			Workers: cfg.CommitWorkers,
			Logger:  logger,
		})

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrapf(err, "open %s", args[0])
		}
		out, err := s.LoadFile(ctx, f, filepath.Base(args[0]))
		f.Close()
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if out.NoData {
			fmt.Fprintln(w, "no usable rows")
			return nil
		}
		snap := s.Snapshot()
		printResult(w, snap.Result)

		if !applyFlag {
			return nil
		}
		if out.Matched == 0 {
			fmt.Fprintln(w, "nothing to apply")
			return nil
		}
		rep, err := s.Commit(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "\napplied %d of %d", rep.Succeeded, rep.Selected)
		if rep.Interrupted {
			fmt.Fprint(w, " (interrupted)")
		}
		fmt.Fprintln(w)
		for _, fl := range rep.Failures {
			fmt.Fprintf(w, "  failed #%d %s: %s\n", fl.Index, fl.Name, fl.Error)
		}
		if len(rep.Failures) > 0 {
			return eris.Errorf("%d cost updates failed", len(rep.Failures))
		}
		return nil
	},
}

func init() {
	reconcileCmd.Flags().BoolVar(&applyFlag, "apply", false, "write matched prices as new costs")
	reconcileCmd.Flags().Float64Var(&thresholdFlag, "threshold", model.Threshold, "similarity threshold (0..1)")
	reconcileCmd.Flags().BoolVar(&keepYearsFlag, "keep-years", false, "compare names with years left in")
}

// флаги поверх конфига; порог проверяется так же, как в конфиге и HTTP
func matchOptions(base model.Options, thresholdSet bool) (model.Options, error) {
	if thresholdSet {
		if !model.ValidThreshold(thresholdFlag) {
			return base, eris.Errorf("--threshold must be in (0, 1], got %v", thresholdFlag)
		}
		base.Threshold = thresholdFlag
	}
	if keepYearsFlag {
		base.StripYears = false
	}
	return base, nil
}

func printResult(w io.Writer, res *model.Result) {
	if res == nil {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "MATCHED (%d)\n", len(res.Matched))
	fmt.Fprintln(tw, "#\tSOURCE\tCATALOG\tSIM\tCOST\tPRICE\tDELTA")
	for i, m := range res.Matched {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.2f\t%s\t%.2f\t%s\n",
			i, m.SourceName, deref(m.MatchedCatalogName), m.Similarity,
			money(m.CurrentCost), m.SourcePrice, money(m.CostDelta()))
	}
	fmt.Fprintf(tw, "\nUNMATCHED (%d)\n", len(res.Unmatched))
	fmt.Fprintln(tw, "#\tSOURCE\tBEST\tSIM\tPRICE\t\t")
	for i, m := range res.Unmatched {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.2f\t%.2f\t\t\n",
			i, m.SourceName, deref(m.MatchedCatalogName), m.Similarity, m.SourcePrice)
	}
	tw.Flush()
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func money(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}
