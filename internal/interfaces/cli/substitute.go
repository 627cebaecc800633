package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/keyip-combinator/internal/application/enumeration"
	"github.com/turtacn/keyip-combinator/internal/infrastructure/monitoring/logging"
)

// NewSubstituteCmd enumerates the variants of a skeleton.
func NewSubstituteCmd() *cobra.Command {
	var (
		req      enumeration.Request
		sinkList []string
	)

	cmd := &cobra.Command{
		Use:   "substitute",
		Short: "Enumerate substitution variants",
		Long: "Graft substituents onto the hydrogen-bearing atoms of a skeleton.\n" +
			"General mode (default) places exactly n substituents, each chosen from\n" +
			"the list with repetition; single mode places one at a time.",
		Example: "  combinator substitute --skeleton CCC -s Br -s '[N+](=O)[O-]' -n 2\n" +
			"  combinator substitute --skeleton c1ccccc1 -s Cl --mode single -o table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			req.Sinks = splitList(sinkList)

			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()
			svc, release, err := cliCtx.Service(ctx, req.Sinks)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := release(); cerr != nil {
					cliCtx.Logger.Warn("failed to close backends", logging.Err(cerr))
				}
			}()

			res, err := svc.Run(ctx, &req)
			if err != nil {
				return err
			}
			return PrintResult(cmd, runOutput{Result: res, verbose: cliCtx.Verbose})
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.Skeleton, "skeleton", "", "skeleton SMILES [REQUIRED]")
	f.StringArrayVarP(&req.Substituents, "substituent", "s", nil, "substituent SMILES, repeatable; its first atom bonds to the site [REQUIRED]")
	f.IntVarP(&req.N, "n", "n", 1, "substituents per variant (general mode)")
	f.StringVar(&req.Mode, "mode", "general", "enumeration mode (general, single)")
	f.BoolVar(&req.CarbonOnly, "carbon-only", false, "substitute carbon atoms only")
	f.BoolVar(&req.Unique, "unique", false, "drop variants with an identical SMILES")
	f.StringSliceVar(&sinkList, "sink", nil, "publish variants to these sinks (kafka, postgres, neo4j, minio)")
	_ = cmd.MarkFlagRequired("skeleton")
	_ = cmd.MarkFlagRequired("substituent")

	return cmd
}

// runOutput renders a Result as SMILES lines or a table.
type runOutput struct {
	*enumeration.Result
	verbose bool
}

func (o runOutput) String() string {
	var sb strings.Builder
	if o.verbose {
		fmt.Fprintf(&sb, "# run %s mode=%s n=%d sites=%d variants=%d cached=%t\n",
			o.RunID, o.Mode, o.N, o.Sites, o.Count, o.Cached)
	}
	for _, v := range o.Variants {
		sb.WriteString(v.SMILES)
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (o runOutput) TableHeaders() []string {
	return []string{"INDEX", "SITES", "ASSIGNMENT", "SMILES"}
}

func (o runOutput) TableRows() [][]string {
	rows := make([][]string, 0, len(o.Variants))
	for _, v := range o.Variants {
		rows = append(rows, []string{strconv.Itoa(v.Index), joinInts(v.Sites), joinInts(v.Assignment), v.SMILES})
	}
	return rows
}

// NewCountCmd reports the exact variant count without enumerating.
func NewCountCmd() *cobra.Command {
	var req enumeration.CountRequest

	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count variants without enumerating them",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()
			svc, release, err := cliCtx.Service(ctx, nil)
			if err != nil {
				return err
			}
			defer release()

			res, err := svc.Count(ctx, &req)
			if err != nil {
				return err
			}
			return PrintResult(cmd, countOutput{res})
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.Skeleton, "skeleton", "", "skeleton SMILES [REQUIRED]")
	f.IntVar(&req.NumSubstituents, "substituents", 1, "number of distinct substituents")
	f.IntVarP(&req.N, "n", "n", 1, "substituents per variant (general mode)")
	f.StringVar(&req.Mode, "mode", "general", "enumeration mode (general, single)")
	f.BoolVar(&req.CarbonOnly, "carbon-only", false, "substitute carbon atoms only")
	_ = cmd.MarkFlagRequired("skeleton")

	return cmd
}

type countOutput struct {
	*enumeration.CountResult
}

func (o countOutput) String() string {
	if o.Overflow {
		return fmt.Sprintf("sites=%d count=overflow\n", o.Sites)
	}
	return fmt.Sprintf("sites=%d count=%d\n", o.Sites, o.Count)
}

// NewSitesCmd lists the atoms eligible for substitution.
func NewSitesCmd() *cobra.Command {
	var req enumeration.SitesRequest

	cmd := &cobra.Command{
		Use:   "sites",
		Short: "List substitution sites of a skeleton",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()
			svc, release, err := cliCtx.Service(ctx, nil)
			if err != nil {
				return err
			}
			defer release()

			res, err := svc.Sites(ctx, &req)
			if err != nil {
				return err
			}
			return PrintResult(cmd, sitesOutput{res})
		},
	}

	cmd.Flags().StringVar(&req.Skeleton, "skeleton", "", "skeleton SMILES [REQUIRED]")
	cmd.Flags().BoolVar(&req.CarbonOnly, "carbon-only", false, "list carbon atoms only")
	_ = cmd.MarkFlagRequired("skeleton")

	return cmd
}

type sitesOutput struct {
	*enumeration.SitesResult
}

func (o sitesOutput) String() string {
	var sb strings.Builder
	for _, s := range o.Sites {
		fmt.Fprintf(&sb, "%d\t%s\tH%d\n", s.Index, s.Element, s.ImplicitHydrogens)
	}
	return sb.String()
}

func (o sitesOutput) TableHeaders() []string {
	return []string{"INDEX", "ELEMENT", "HYDROGENS"}
}

func (o sitesOutput) TableRows() [][]string {
	rows := make([][]string, 0, len(o.Sites))
	for _, s := range o.Sites {
		rows = append(rows, []string{strconv.Itoa(s.Index), s.Element, strconv.Itoa(int(s.ImplicitHydrogens))})
	}
	return rows
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ",")
}

// splitList trims entries and drops empty ones.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

//Personal.AI order the ending
