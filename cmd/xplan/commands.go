package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ashita-ai/xplan"
	"github.com/ashita-ai/xplan/internal/factored"
	"github.com/ashita-ai/xplan/internal/integrity"
	"github.com/ashita-ai/xplan/internal/policy"
	"github.com/ashita-ai/xplan/internal/xmdp"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "xplan",
		Short: "Induce, evaluate and explain policies over factored MDP domains",
		Long: `xplan evaluates policies against a planning domain and explains the
quality-attribute tradeoffs between a solution policy and its alternatives.

A policy reference is a JSON policy file, a stored policy ID, or the name of
a stored policy (the newest one with that name is used).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&a.domainName, "domain", "clinic", "planning domain: "+fmt.Sprint(domainNames()))
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML domain parameter file (defaults when empty)")

	root.AddCommand(newInduceCmd(a), newEvaluateCmd(a), newExplainCmd(a), newPolicyCmd(a))
	return root
}

func newInduceCmd(a *app) *cobra.Command {
	var ref string
	cmd := &cobra.Command{
		Use:   "induce",
		Short: "Induce the Markov chain of a policy and summarize it per action definition",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			x, err := a.loadDomain()
			if err != nil {
				return err
			}
			planner, err := a.planner(ctx, needsStore(ref))
			if err != nil {
				return err
			}
			p, _, err := a.resolvePolicy(ctx, planner, x, ref)
			if err != nil {
				return err
			}
			m, err := planner.Induce(ctx, x, p)
			if err != nil {
				return err
			}

			type definitionSummary struct {
				Name   string   `json:"name"`
				States []string `json:"states"`
			}
			out := struct {
				Decisions   int                 `json:"decisions"`
				Definitions []definitionSummary `json:"action_definitions"`
			}{Decisions: p.Len()}
			for _, def := range m.ActionDefinitions() {
				tbn, _ := m.TwoTBN(def)
				s := definitionSummary{Name: def.Name()}
				for _, e := range tbn.Entries() {
					s.States = append(s.States, e.State.Key()+" -> "+factored.ActionKey(e.Action))
				}
				out.Definitions = append(out.Definitions, s)
			}
			return a.print(out)
		},
	}
	cmd.Flags().StringVar(&ref, "policy", "", "policy reference (required)")
	_ = cmd.MarkFlagRequired("policy")
	return cmd
}

func newEvaluateCmd(a *app) *cobra.Command {
	var ref string
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Compute the expected QA values and cost of a policy",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			x, err := a.loadDomain()
			if err != nil {
				return err
			}
			planner, err := a.planner(ctx, needsStore(ref))
			if err != nil {
				return err
			}
			p, _, err := a.resolvePolicy(ctx, planner, x, ref)
			if err != nil {
				return err
			}
			r, err := planner.Evaluate(ctx, x, p)
			if err != nil {
				return err
			}
			return a.print(xplan.NewEvaluation(r))
		},
	}
	cmd.Flags().StringVar(&ref, "policy", "", "policy reference (required)")
	_ = cmd.MarkFlagRequired("policy")
	return cmd
}

func newExplainCmd(a *app) *cobra.Command {
	var (
		solutionRef  string
		altRefs      []string
		save         bool
		solutionName string
	)
	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Compare a solution policy against alternatives",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			x, err := a.loadDomain()
			if err != nil {
				return err
			}
			withStore := save || needsStore(solutionRef)
			for _, r := range altRefs {
				withStore = withStore || needsStore(r)
			}
			planner, err := a.planner(ctx, withStore)
			if err != nil {
				return err
			}

			solution, solutionID, err := a.resolvePolicy(ctx, planner, x, solutionRef)
			if err != nil {
				return fmt.Errorf("solution: %w", err)
			}
			alternatives := make([]*policy.Policy, len(altRefs))
			for i, r := range altRefs {
				if alternatives[i], _, err = a.resolvePolicy(ctx, planner, x, r); err != nil {
					return fmt.Errorf("alternative %d: %w", i, err)
				}
			}

			exp, err := planner.Explain(ctx, x, solution, alternatives)
			if err != nil {
				return err
			}
			if save {
				if solutionID == uuid.Nil {
					rec, err := planner.SavePolicy(ctx, a.domainName, solutionName, solution)
					if err != nil {
						return err
					}
					solutionID = rec.ID
				}
				if _, err := planner.SaveExplanation(ctx, a.domainName, solutionID, exp); err != nil {
					return err
				}
			}

			report, err := xplan.NewReport(exp)
			if err != nil {
				return err
			}
			return a.print(report)
		},
	}
	cmd.Flags().StringVar(&solutionRef, "solution", "", "solution policy reference (required)")
	cmd.Flags().StringArrayVar(&altRefs, "alternative", nil, "alternative policy reference (repeatable)")
	cmd.Flags().BoolVar(&save, "save", false, "persist the explanation (and a file-based solution) in the store")
	cmd.Flags().StringVar(&solutionName, "name", "solution", "name under which a file-based solution is saved")
	_ = cmd.MarkFlagRequired("solution")
	return cmd
}

func newPolicyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Manage stored policies",
	}

	var name, file string
	saveCmd := &cobra.Command{
		Use:   "save",
		Short: "Validate a policy file against the domain and store it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			x, err := a.loadDomain()
			if err != nil {
				return err
			}
			p, err := readPolicyFile(x, file)
			if err != nil {
				return err
			}
			planner, err := a.planner(ctx, true)
			if err != nil {
				return err
			}
			rec, err := planner.SavePolicy(ctx, a.domainName, name, p)
			if err != nil {
				return err
			}
			return a.print(policySummary{ID: rec.ID, Name: rec.Name, Fingerprint: rec.Fingerprint, CreatedAt: rec.CreatedAt})
		},
	}
	saveCmd.Flags().StringVar(&name, "name", "", "policy name (required)")
	saveCmd.Flags().StringVar(&file, "file", "", "policy JSON file (required)")
	_ = saveCmd.MarkFlagRequired("name")
	_ = saveCmd.MarkFlagRequired("file")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the stored policies of the domain, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			recs, err := s.ListPolicies(cmd.Context(), a.domainName)
			if err != nil {
				return err
			}
			out := make([]policySummary, len(recs))
			for i, r := range recs {
				out[i] = policySummary{ID: r.ID, Name: r.Name, Fingerprint: r.Fingerprint, CreatedAt: r.CreatedAt}
			}
			return a.print(out)
		},
	}

	var fingerprintFile string
	fingerprintCmd := &cobra.Command{
		Use:   "fingerprint",
		Short: "Print the fingerprint of a policy file",
		RunE: func(_ *cobra.Command, _ []string) error {
			x, err := a.loadDomain()
			if err != nil {
				return err
			}
			p, err := readPolicyFile(x, fingerprintFile)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(a.out, integrity.PolicyFingerprint(p))
			return err
		},
	}
	fingerprintCmd.Flags().StringVar(&fingerprintFile, "file", "", "policy JSON file (required)")
	_ = fingerprintCmd.MarkFlagRequired("file")

	cmd.AddCommand(saveCmd, listCmd, fingerprintCmd)
	return cmd
}

type policySummary struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"created_at"`
}

// needsStore reports whether ref names a stored policy rather than a file.
func needsStore(ref string) bool {
	if ref == "" {
		return false
	}
	_, err := os.Stat(ref)
	return errors.Is(err, os.ErrNotExist)
}

// resolvePolicy loads ref as a file, a stored policy ID, or the newest
// stored policy with that name, in that order. The returned ID is
// uuid.Nil for files.
func (a *app) resolvePolicy(ctx context.Context, planner *xplan.Planner, x *xmdp.XMDP, ref string) (*policy.Policy, uuid.UUID, error) {
	if !needsStore(ref) {
		p, err := readPolicyFile(x, ref)
		return p, uuid.Nil, err
	}
	if id, err := uuid.Parse(ref); err == nil {
		p, rec, err := planner.GetPolicy(ctx, x, id)
		return p, rec.ID, err
	}
	p, rec, err := planner.LatestPolicy(ctx, x, a.domainName, ref)
	return p, rec.ID, err
}

func readPolicyFile(x *xmdp.XMDP, path string) (*policy.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	p, err := policy.Decode(data, x.StateSpace(), x.ActionSpace())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
