// Package rewrite implements command which appends revision tokens to url()
// references of style sheets on disk.
package rewrite

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/maruel/natural"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"urlrev/config"
	"urlrev/css"
	"urlrev/state"
	"urlrev/urlrev"
)

const styleSheetExt = ".css"

func Run(ctx context.Context, cmd *cli.Command) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("rewrite")

	src := cmd.Args().Get(0)
	if len(src) == 0 {
		return errors.New("no input source has been specified")
	}
	if src, err = filepath.Abs(src); err != nil {
		return err
	}

	env.InPlace, env.Overwrite, env.Strict = cmd.Bool("in-place"), cmd.Bool("overwrite"), cmd.Bool("strict")

	dst := cmd.Args().Get(1)
	switch {
	case env.InPlace && len(dst) > 0:
		log.Warn("Rewriting sources in place, ignoring destination", zap.Strings("ignoring", cmd.Args().Slice()[1:]))
		dst = ""
	case !env.InPlace && len(dst) == 0:
		if dst, err = os.Getwd(); err != nil {
			return fmt.Errorf("unable to get working directory: %w", err)
		}
	}
	if len(dst) > 0 {
		if dst, err = filepath.Abs(dst); err != nil {
			return err
		}
	}
	if cmd.Args().Len() > 2 {
		log.Warn("Mailformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[2:]))
	}

	if cs := cmd.String("charset"); len(cs) > 0 {
		if env.Charset, err = LookupCharset(cs); err != nil {
			return err
		}
		log.Debug("Forcing style sheet encoding", zap.String("charset", charsetName(env.Charset)))
	}

	if err := applyOverrides(cmd, env.Cfg); err != nil {
		return fmt.Errorf("bad command line: %w", err)
	}

	rev, err := NewRevisioner(env.Cfg, log)
	if err != nil {
		return err
	}

	log.Info("Processing starting", zap.String("source", src), zap.String("destination", dst), zap.Stringer("run", env.RunID))
	defer func(start time.Time) {
		log.Info("Processing completed", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	return process(ctx, src, dst, rev, log)
}

// applyOverrides moves explicitly requested command line values into
// configuration.
func applyOverrides(cmd *cli.Command, cfg *config.Config) error {
	changed := false
	if cmd.IsSet("remote") {
		cfg.Revision.IncludeRemote, changed = cmd.Bool("remote"), true
	}
	if cmd.IsSet("absolute-path") {
		cfg.Revision.AbsolutePath, changed = cmd.String("absolute-path"), true
	}
	if cmd.IsSet("hash-length") {
		cfg.Revision.HashLength, changed = int(cmd.Int("hash-length")), true
	}
	if cmd.IsSet("template") {
		cfg.Revision.Template, changed = cmd.String("template"), true
	}
	if cmd.IsSet("algorithm") {
		cfg.Revision.Algorithm, changed = strings.ToLower(cmd.String("algorithm")), true
	}
	if !changed {
		return nil
	}
	return cfg.Check()
}

// NewRevisioner prepares Revisioner according to configuration.
func NewRevisioner(cfg *config.Config, log *zap.Logger) (*urlrev.Revisioner, error) {
	opts := []urlrev.Option{
		urlrev.WithIncludeRemote(cfg.Revision.IncludeRemote),
		urlrev.WithAbsolutePath(cfg.Revision.AbsolutePath),
		urlrev.WithHashLength(cfg.Revision.HashLength),
		urlrev.WithAlgorithm(cfg.Revision.Algorithm),
		urlrev.WithQueryKey(cfg.Revision.QueryKey),
		urlrev.WithConcurrency(cfg.Revision.Concurrency),
		urlrev.WithHTTPClient(cfg.Remote.Client()),
		urlrev.WithHeaders(cfg.Remote.Header()),
		urlrev.WithLogger(log),
	}
	if len(cfg.Revision.Template) > 0 {
		rp, err := urlrev.NewTemplateReplacer(cfg.Revision.Template, cfg.Revision.HashLength)
		if err != nil {
			return nil, err
		}
		opts = append(opts, urlrev.WithReplacer(rp))
	}
	rev, err := urlrev.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to prepare revisioner: %w", err)
	}
	return rev, nil
}

// process handles either single style sheet or directory tree of them. dst is
// output directory, empty when sources are rewritten in place.
func process(ctx context.Context, src, dst string, rev *urlrev.Revisioner, log *zap.Logger) error {
	fi, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("input source was not found (%s): %w", src, err)
	}

	var files []string
	switch {
	case fi.Mode().IsDir():
		if files, err = discover(ctx, src, log); err != nil {
			return fmt.Errorf("unable to process directory: %w", err)
		}
		if len(files) == 0 {
			log.Debug("Nothing to process", zap.String("dir", src))
			return nil
		}
	case fi.Mode().IsRegular():
		files = []string{filepath.Base(src)}
		src = filepath.Dir(src)
	default:
		return fmt.Errorf("unexpected path mode for (%s)", src)
	}

	var (
		errs     error
		failed   int
		warnings int
	)
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		n, err := processFile(ctx, src, rel, dst, rev, log)
		warnings += n
		if err != nil {
			failed++
			log.Error("Unable to process style sheet", zap.String("file", rel), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", rel, err))
		}
	}

	if errs != nil {
		return fmt.Errorf("unable to process %d of %d style sheet(s): %w", failed, len(files), errs)
	}
	if warnings > 0 && state.EnvFromContext(ctx).Strict {
		return fmt.Errorf("%d declaration(s) could not be revisioned", warnings)
	}
	return nil
}

// discover returns paths of style sheets under dir relative to it in natural
// order. Symbolic links are not followed.
func discover(ctx context.Context, dir string, log *zap.Logger) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err != nil {
			log.Warn("Skipping path", zap.String("path", path), zap.Error(err))
			return nil
		}
		if !d.Type().IsRegular() || !strings.EqualFold(filepath.Ext(path), styleSheetExt) {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Sort(natural.StringSlice(files))
	return files, nil
}

// processFile rewrites single style sheet dir/rel, result goes to dst/rel or
// back to the source when dst is empty. Returns number of declaration
// warnings.
func processFile(ctx context.Context, dir, rel, dst string, rev *urlrev.Revisioner, log *zap.Logger) (warnings int, rerr error) {
	env := state.EnvFromContext(ctx)

	from := filepath.Join(dir, rel)
	to := from
	if len(dst) > 0 {
		to = filepath.Join(dst, rel)
	}

	log.Debug("Style sheet processing starting", zap.String("from", from))
	defer func(start time.Time) {
		if r := recover(); r != nil {
			log.Error("Style sheet processing ended with panic",
				zap.Any("panic", r), zap.Duration("elapsed", time.Since(start)), zap.String("from", from), zap.ByteString("stack", debug.Stack()))
			rerr = fmt.Errorf("processing panic: %v", r)
		}
	}(time.Now())

	if !env.InPlace && !env.Overwrite {
		if _, err := os.Stat(to); err == nil {
			return 0, fmt.Errorf("output file already exists: %s", to)
		} else if !os.IsNotExist(err) {
			return 0, err
		}
	}

	info, err := os.Stat(from)
	if err != nil {
		return 0, err
	}
	raw, err := os.ReadFile(from)
	if err != nil {
		return 0, fmt.Errorf("unable to read style sheet: %w", err)
	}
	env.Rpt.StoreData(filepath.ToSlash(filepath.Join("source", rel)), raw)

	enc, err := selectEncoding(raw, env.Charset)
	if err != nil {
		log.Warn("Unable to honour declared character set, assuming UTF-8", zap.String("file", rel), zap.Error(err))
		enc = nil
	}
	text, err := decode(raw, enc)
	if err != nil {
		return 0, err
	}

	sheet, err := css.NewParser(log).Parse(text, from)
	if err != nil {
		return 0, err
	}

	sink := urlrev.WarningSinkFunc(func(decl urlrev.Declaration, msg string) {
		if d, ok := decl.(*css.Declaration); ok {
			sheet.Warn(d, msg)
		}
	})
	sum := rev.Transform(ctx, urlrev.Declarations(sheet.Declarations()), sink, from)

	for _, w := range sheet.Warnings() {
		warnings++
		log.Warn("Unable to revision declaration",
			zap.String("location", fmt.Sprintf("%s:%d", rel, w.Line)),
			zap.String("property", w.Property),
			zap.String("reason", w.Text))
	}
	result := sheet.String()
	storeDiagnostics(env.Rpt, rel, sheet, string(text), result)

	if to == from && sum.Rewritten == 0 {
		log.Debug("Style sheet left untouched", zap.String("file", rel))
		return warnings, nil
	}

	out, err := encode([]byte(result), enc)
	if err != nil {
		return warnings, err
	}
	if err := os.MkdirAll(filepath.Dir(to), 0755); err != nil {
		return warnings, fmt.Errorf("unable to create output directory: %w", err)
	}
	if err := os.WriteFile(to, out, info.Mode().Perm()); err != nil {
		return warnings, fmt.Errorf("unable to write style sheet: %w", err)
	}
	env.Rpt.StoreData(filepath.ToSlash(filepath.Join("result", rel)), out)

	log.Info("Style sheet processed",
		zap.String("file", rel),
		zap.String("to", to),
		zap.String("charset", charsetName(enc)),
		zap.Int("declarations", sum.Declarations),
		zap.Int("rewritten", sum.Rewritten),
		zap.Int("references", sum.References),
		zap.Int("warnings", warnings))
	return warnings, nil
}

// storeDiagnostics puts parsed tree and line changes of style sheet into
// report. Nothing is computed when report was not requested.
func storeDiagnostics(rpt *config.Report, rel string, sheet *css.Stylesheet, before, after string) {
	if rpt == nil {
		return
	}
	rpt.StoreData(filepath.ToSlash(filepath.Join("parsed", rel+".txt")), []byte(sheet.Dump()))
	rpt.StoreData(filepath.ToSlash(filepath.Join("changes", rel+".diff")), []byte(changes(before, after)))
}
