package cli

import (
	"errors"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/roach88/kiln/internal/compiler"
)

// SettingsFlags are the compilation flags shared by compile and layout.
// Flags given on the command line override the config file.
type SettingsFlags struct {
	Config         string
	Optimize       string
	Debug          bool
	DenseThreshold int
}

func (f *SettingsFlags) register(cmd *cobra.Command) {
	d := compiler.DefaultSettings()
	cmd.Flags().StringVarP(&f.Config, "config", "c", "", "YAML settings file")
	cmd.Flags().StringVar(&f.Optimize, "optimize", d.Optimize, "dispatch objective (gas|size|none)")
	cmd.Flags().BoolVar(&f.Debug, "debug", d.Debug, "force the dense dispatch table under --optimize=size")
	cmd.Flags().IntVar(&f.DenseThreshold, "dense-threshold", d.DenseThreshold, "selector count above which size picks the dense table")
}

func (f *SettingsFlags) resolve(cmd *cobra.Command) (compiler.Settings, error) {
	s := compiler.DefaultSettings()
	if f.Config != "" {
		loaded, err := compiler.LoadSettings(f.Config)
		if errors.Is(err, fs.ErrNotExist) {
			return s, &LoadError{Code: ErrCodeNotFound, Message: err.Error()}
		}
		if err != nil {
			return s, &LoadError{Code: ErrCodeInvalidFlag, Message: err.Error()}
		}
		s = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("optimize") {
		s.Optimize = f.Optimize
	}
	if flags.Changed("debug") {
		s.Debug = f.Debug
	}
	if flags.Changed("dense-threshold") {
		s.DenseThreshold = f.DenseThreshold
	}
	if _, err := s.Policy(); err != nil {
		return s, &LoadError{Code: ErrCodeInvalidFlag, Message: err.Error()}
	}
	return s, nil
}
