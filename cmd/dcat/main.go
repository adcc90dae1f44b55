// Package main provides the dcat command-line interface: it runs the
// data-cache categorization engine on a JSON program description and a
// JSON hardware description.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sarchlab/dcat/dcache/access"
	"github.com/sarchlab/dcat/dcache/analysis"
	"github.com/sarchlab/dcat/dcache/classify"
	"github.com/sarchlab/dcat/dcache/events"
	"github.com/sarchlab/dcat/hw"
	"github.com/sarchlab/dcat/prog"
	"github.com/sarchlab/dcat/refsim"
)

var rootCmd = &cobra.Command{
	Use:   "dcat",
	Short: "Data-cache categorization engine for WCET analysis",
	Long: `dcat classifies the data-cache accesses of a program into
Always-Hit, Persistent, Always-Miss and Not-Classified categories and
emits the per-edge timing events consumed by an ILP-based WCET
computation.`,
	SilenceUsage: true,
}

var (
	configPath  string
	programPath string
	onlySets    []int
	explicit    bool
	withPrefix  bool
	withMay     bool
	withPers    bool
	withMPers   bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"path to the hardware description JSON (default: built-in test platform)")

	analyzeCmd.Flags().StringVar(&programPath, "program", "", "path to the program description JSON")
	analyzeCmd.Flags().IntSliceVar(&onlySets, "only-set", nil, "restrict the analysis to the given cache sets")
	analyzeCmd.Flags().BoolVar(&explicit, "explicit", false, "print verbose event details")
	analyzeCmd.Flags().BoolVar(&withPrefix, "prefix", false, "also build the per-edge prefix event lists")
	analyzeCmd.Flags().BoolVar(&withMay, "may", true, "run the MAY analysis")
	analyzeCmd.Flags().BoolVar(&withPers, "pers", true, "run the persistence analysis")
	analyzeCmd.Flags().BoolVar(&withMPers, "multi-pers", true, "run the multi-level persistence analysis")
	_ = analyzeCmd.MarkFlagRequired("program")
	rootCmd.AddCommand(analyzeCmd)

	dumpCmd.Flags().StringVar(&programPath, "program", "", "path to the program description JSON")
	dumpCmd.Flags().IntSliceVar(&onlySets, "only-set", nil, "restrict the dump to the given cache sets")
	_ = dumpCmd.MarkFlagRequired("program")
	rootCmd.AddCommand(dumpCmd)

	simulateCmd.Flags().StringVar(&tracePath, "trace", "", "path to the trace JSON")
	_ = simulateCmd.MarkFlagRequired("trace")
	rootCmd.AddCommand(simulateCmd)
}

func loadConfig() (*hw.Config, error) {
	if configPath == "" {
		return hw.DefaultConfig(), nil
	}
	return hw.LoadConfig(configPath)
}

// engine bundles everything a fully built analysis needs.
type engine struct {
	collection *prog.Collection
	accs       access.Map
	coll       *access.SetCollection
	classifier *classify.Classifier
	analyses   []*analysis.Analysis
}

func buildEngine() (*engine, error) {
	config, err := loadConfig()
	if err != nil {
		return nil, err
	}

	collection, err := prog.LoadProgram(programPath)
	if err != nil {
		return nil, err
	}

	builder, err := access.NewBuilder(config)
	if err != nil {
		return nil, err
	}
	accs, err := builder.Build(collection)
	if err != nil {
		return nil, err
	}
	for _, w := range builder.Warnings() {
		fmt.Fprintf(os.Stderr, "warning: %v\n", w)
	}

	e := &engine{collection: collection, accs: accs, coll: builder.Collection()}

	run := func(kind analysis.Kind) (*analysis.Analysis, error) {
		var opts []analysis.Option
		if len(onlySets) > 0 {
			opts = append(opts, analysis.WithOnlySets(onlySets...))
		}
		a, err := analysis.New(kind, e.coll, accs, collection, opts...)
		if err != nil {
			return nil, err
		}
		if err := a.Run(); err != nil {
			return nil, err
		}
		for _, w := range a.Warnings() {
			fmt.Fprintf(os.Stderr, "warning: %s: %s\n", kind, w)
		}
		e.analyses = append(e.analyses, a)
		return a, nil
	}

	must, err := run(analysis.Must)
	if err != nil {
		return nil, err
	}
	var opts []classify.Option
	if withMay {
		may, err := run(analysis.May)
		if err != nil {
			return nil, err
		}
		opts = append(opts, classify.WithMay(may))
	}
	if withPers {
		pers, err := run(analysis.Pers)
		if err != nil {
			return nil, err
		}
		opts = append(opts, classify.WithPers(pers))
	}
	if withMPers {
		mpers, err := run(analysis.MultiPers)
		if err != nil {
			return nil, err
		}
		opts = append(opts, classify.WithMultiPers(mpers))
	}
	e.classifier = classify.New(must, opts...)
	return e, nil
}

func (e *engine) cleanup() {
	for _, a := range e.analyses {
		a.Cleanup()
	}
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Classify accesses and print the per-edge events",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := buildEngine()
		if err != nil {
			return err
		}
		defer e.cleanup()

		results := e.classifier.Run(e.collection, e.accs)
		builder := events.NewBuilder(e.classifier, e.coll, events.WithExplicit(explicit))
		list := builder.Run(e.collection, e.accs)

		var prefix events.List
		if withPrefix {
			prefix = events.NewBuilder(e.classifier, e.coll, events.WithPrefix()).
				Run(e.collection, e.accs)
		}

		printResults(e, results, list, prefix)
		return nil
	},
}

func printResults(e *engine, results classify.Results, list, prefix events.List) {
	for _, g := range e.collection.CFGs() {
		fmt.Printf("CFG %s\n", g.Name())
		for _, b := range g.Blocks() {
			if !b.IsBasic() || len(e.accs.At(b)) == 0 {
				continue
			}
			for _, in := range b.In() {
				fmt.Printf("\talong %v\n", in)
				for _, r := range results[in] {
					fmt.Printf("\t\t%v: %v", r.Access, r.Category)
					if r.Category == classify.PE {
						fmt.Printf(" (%v)", r.Scope)
					}
					fmt.Println()
				}
				for _, evt := range prefix.At(in) {
					fmt.Printf("\t\t[P] %s\n", evt.Detail())
				}
				for _, evt := range list.At(in) {
					if explicit {
						fmt.Printf("\t\t[B] %s\n", evt.Detail())
					} else {
						fmt.Printf("\t\t[B] cost=%d %v\n", evt.Cost, evt.Occurrence)
					}
				}
			}
		}
	}
}

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the fixed-point cache states of every analysis",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := buildEngine()
		if err != nil {
			return err
		}
		defer e.cleanup()

		for _, a := range e.analyses {
			fmt.Printf("== %v ==\n", a.Kind())
			a.Dump(os.Stdout)
		}
		return nil
	},
}

var tracePath string

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Replay a concrete trace through the reference LRU cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig()
		if err != nil {
			return err
		}

		data, err := os.ReadFile(tracePath)
		if err != nil {
			return fmt.Errorf("failed to read trace file: %w", err)
		}
		var trace []refsim.TraceAccess
		if err := json.Unmarshal(data, &trace); err != nil {
			return fmt.Errorf("failed to parse trace: %w", err)
		}

		cache, err := refsim.New(config)
		if err != nil {
			return err
		}
		stats := cache.Replay(trace)
		fmt.Printf("accesses: %d\nhits:     %d\nmisses:   %d\nbypasses: %d\n",
			stats.Accesses, stats.Hits, stats.Misses, stats.Bypasses)
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
