package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	rhythm "github.com/ieee0824/rhythm-go"
	"github.com/ieee0824/rhythm-go/segment"
	"github.com/ieee0824/rhythm-go/store"
)

func newFitCmd(a *app) *cobra.Command {
	var speaker, manifest string
	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Fit a speaker profile from a JSONL manifest and store it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			utts, err := segment.LoadManifestFile(manifest)
			if err != nil {
				return err
			}
			conv := rhythm.New(a.cfg.Frame(), a.converterOptions()...)
			report, err := conv.FitSource(utts)
			if err != nil {
				return err
			}
			p := store.BuildProfile(speaker, conv.Config(), report.Fitted, &report.Rate, report.Utterances)

			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Put(cmd.Context(), p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d clusters, %d skipped, %.3f sonorants/s over %d utterances\n",
				speaker, len(p.Durations), len(p.Skipped), report.Rate, report.Utterances)
			return nil
		},
	}
	cmd.Flags().StringVar(&speaker, "speaker", "", "speaker name")
	cmd.Flags().StringVar(&manifest, "manifest", "", "JSONL manifest of segmented utterances")
	_ = cmd.MarkFlagRequired("speaker")
	_ = cmd.MarkFlagRequired("manifest")
	return cmd
}

// pairFlags are the --source and --target speaker names.
type pairFlags struct {
	source, target string
}

func (f *pairFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.source, "source", "", "source speaker")
	cmd.Flags().StringVar(&f.target, "target", "", "target speaker")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("target")
}

// converter builds a Converter from the two stored profiles.
func (a *app) converter(cmd *cobra.Command, f pairFlags) (*rhythm.Converter, error) {
	st, err := a.openStore()
	if err != nil {
		return nil, err
	}
	defer st.Close()

	src, err := st.Get(cmd.Context(), f.source)
	if err != nil {
		return nil, err
	}
	tgt, err := st.Get(cmd.Context(), f.target)
	if err != nil {
		return nil, err
	}
	return rhythm.FromProfiles(src, tgt, a.converterOptions()...)
}

type segmentRecord struct {
	Index        int               `json:"index"`
	Cluster      segment.SoundType `json:"cluster"`
	SourceFrames int               `json:"source_frames"`
	Frames       int               `json:"frames"`
	Outcome      string            `json:"outcome"`
}

type convertRecord struct {
	ID        string          `json:"id,omitempty"`
	Durations []int           `json:"durations"`
	Ratio     float64         `json:"ratio"`
	Segments  []segmentRecord `json:"segments,omitempty"`
}

func newConvertCmd(a *app) *cobra.Command {
	var (
		pair             pairFlags
		manifest, output string
		detail           bool
	)
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert the segment durations of a manifest from source to target rhythm",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conv, err := a.converter(cmd, pair)
			if err != nil {
				return err
			}
			if conv.Config().HopRate() != a.cfg.HopRate() {
				return fmt.Errorf("%w: profiles at %gs, manifest config at %gs",
					rhythm.ErrHopRateMismatch, conv.Config().HopRate(), a.cfg.HopRate())
			}
			utts, err := segment.LoadManifestFile(manifest)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			enc := json.NewEncoder(w)
			for i, u := range utts {
				res, err := conv.Convert(u)
				if err != nil {
					return &segment.UtteranceError{Index: i, ID: u.ID, Err: err}
				}
				rec := convertRecord{ID: u.ID, Durations: res.Durations, Ratio: res.Ratio}
				if detail {
					for _, s := range res.Segments {
						rec.Segments = append(rec.Segments, segmentRecord{
							Index:        s.Index,
							Cluster:      s.Cluster,
							SourceFrames: s.SourceFrames,
							Frames:       s.Frames,
							Outcome:      s.Outcome.String(),
						})
					}
				}
				if err := enc.Encode(rec); err != nil {
					return err
				}
			}
			return nil
		},
	}
	pair.register(cmd)
	cmd.Flags().StringVar(&manifest, "manifest", "", "JSONL manifest of source utterances")
	cmd.Flags().StringVar(&output, "output", "", "output file (default stdout)")
	cmd.Flags().BoolVar(&detail, "detail", false, "include per-segment outcomes")
	_ = cmd.MarkFlagRequired("manifest")
	return cmd
}

func newRatioCmd(a *app) *cobra.Command {
	var pair pairFlags
	cmd := &cobra.Command{
		Use:   "ratio",
		Short: "Print the global tempo ratio between two speakers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conv, err := a.converter(cmd, pair)
			if err != nil {
				return err
			}
			ratio, err := conv.Ratio()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%.6f\n", ratio)
			return nil
		},
	}
	pair.register(cmd)
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var (
		pair   pairFlags
		output string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the converter for two speakers as .gob, .json or .yaml",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conv, err := a.converter(cmd, pair)
			if err != nil {
				return err
			}
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			if err := writeConverter(f, filepath.Ext(output), conv); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			a.logger.Info("converter exported", zap.String("path", output))
			return nil
		},
	}
	pair.register(cmd)
	cmd.Flags().StringVar(&output, "output", "", "output file; the extension selects the format")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func writeConverter(w io.Writer, ext string, conv *rhythm.Converter) error {
	switch strings.ToLower(ext) {
	case ".gob":
		return conv.Save(w)
	case ".json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(conv.State())
	case ".yaml", ".yml":
		enc := yaml.NewEncoder(w)
		if err := enc.Encode(conv.State()); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown export format %q (want .gob, .json or .yaml)", ext)
}
