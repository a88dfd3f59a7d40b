package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bjaus/mergeload"
	"github.com/bjaus/mergeload/internal/config"
	"github.com/bjaus/mergeload/internal/loadjob"
	"github.com/bjaus/mergeload/internal/logger"
)

// defaultSchemaFile is looked up next to the job file, then in the working
// directory, when --schema-path is not given.
const defaultSchemaFile = "incident_schema_v3.json"

type loadFlags struct {
	settings config.Settings
	dryRun   bool
}

func newLoadCommand() *cobra.Command {
	// .env values are visible to FromEnv; real environment variables win.
	_ = godotenv.Load()

	f := &loadFlags{settings: config.FromEnv()}
	s := &f.settings

	cmd := &cobra.Command{
		Use:   "load <input-dir>",
		Short: "Load joined records from a directory of sorted CSV extracts",
		Long: `Load joins the CSV extracts in <input-dir> on the job's join column and
posts one record per id to <api-url>/records/.

Every extract must be sorted ascending by the join column, compared as text.
When no --schema-id is given, a record type and schema are created first from
--schema-path.

Settings may also come from MERGELOAD_* environment variables or a .env file;
flags take precedence.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.ExactArgs(1)(cmd, args); err != nil {
				return usageError{err}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(cmd, args[0], f)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&s.APIURL, "api-url", s.APIURL, "API host / path to target for loading data")
	fl.StringVar(&s.Authz, "authz", s.Authz, "Authorization header value")
	fl.StringVar(&s.SchemaID, "schema-id", s.SchemaID, "UUID of an existing record schema to load into")
	fl.StringVar(&s.SchemaPath, "schema-path", s.SchemaPath, "path to the JSON schema used when creating a new record schema")
	fl.StringVar(&s.JobPath, "job", s.JobPath, "YAML job file describing sources and field mappings (default: built-in incident layout)")
	fl.StringVar(&s.DeadLetter, "dead-letter", s.DeadLetter, "file to append refused records to; without it a refused record stops the run")
	fl.IntVar(&s.MaxAttempts, "max-attempts", s.MaxAttempts, "delivery attempts per record before giving up")
	fl.DurationVar(&s.RetryWaitMin, "retry-wait-min", s.RetryWaitMin, "first retry delay")
	fl.DurationVar(&s.RetryWaitMax, "retry-wait-max", s.RetryWaitMax, "longest retry delay")
	fl.DurationVar(&s.HTTPTimeout, "http-timeout", s.HTTPTimeout, "timeout for each HTTP attempt")
	fl.DurationVar(&s.ProgressEvery, "progress-every", s.ProgressEvery, "how often to log progress")
	fl.DurationVar(&s.DrainTimeout, "drain-timeout", s.DrainTimeout, "how long a delivery may finish after interrupt (0 aborts at once)")
	fl.StringVar(&s.LogLevel, "log-level", s.LogLevel, "trace, debug, info, warn or error")
	fl.StringVar(&s.LogFormat, "log-format", s.LogFormat, "console or json")
	fl.BoolVar(&f.dryRun, "dry-run", false, "write records to stdout as JSON lines instead of posting them")

	return cmd
}

func runLoad(cmd *cobra.Command, dir string, f *loadFlags) error {
	s := f.settings
	log := logger.Init(logger.Options{Level: s.LogLevel, Format: s.LogFormat, Writer: cmd.ErrOrStderr()})

	job := config.IncidentJob()
	if s.JobPath != "" {
		j, err := config.LoadJob(s.JobPath)
		if err != nil {
			return configError{err}
		}
		job = j
	}

	headers := map[string]string{}
	if s.Authz != "" {
		headers["Authorization"] = s.Authz
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	schemaID := s.SchemaID
	if schemaID == "" && !f.dryRun {
		log.Info().Msg("creating schema remotely")
		id, err := provision(ctx, s, headers)
		if err != nil {
			return configError{err}
		}
		schemaID = id
		log.Info().Str("schema_id", schemaID).Msg("created record schema")
	}

	rt, err := job.Transformer(schemaID)
	if err != nil {
		return configError{err}
	}

	var sink loadjob.Sink
	if f.dryRun {
		sink = loadjob.NewJSONLines(cmd.OutOrStdout())
	} else {
		sink = mergeload.NewHTTPLoader(mergeload.LoaderOptions{
			APIRoot:      s.APIURL,
			Headers:      headers,
			MaxAttempts:  s.MaxAttempts,
			RetryWaitMin: s.RetryWaitMin,
			RetryWaitMax: s.RetryWaitMax,
			Timeout:      s.HTTPTimeout,
			Logger:       *logger.Named("loader"),
		})
	}

	var dl *loadjob.DeadLetter
	if s.DeadLetter != "" {
		d, closer := loadjob.OpenDeadLetter(s.DeadLetter)
		defer func() {
			if err := closer.Close(); err != nil {
				log.Error().Err(err).Msg("closing dead-letter file")
			}
		}()
		dl = d
	}

	log.Info().Str("dir", dir).Bool("dry_run", f.dryRun).Msg("loading data")
	return loadjob.New(loadjob.Options{
		Files:        job.Files(dir),
		JoinColumn:   job.JoinColumn,
		Transformer:  rt,
		Sink:         sink,
		DeadLetter:   dl,
		ReportEvery:  s.ProgressEvery,
		DrainTimeout: s.DrainTimeout,
		Logger:       *logger.Named("load"),
	}).Run(ctx)
}

func provision(ctx context.Context, s config.Settings, headers map[string]string) (string, error) {
	path := s.SchemaPath
	if path == "" {
		path = defaultSchemaFile
		if s.JobPath != "" {
			if p := filepath.Join(filepath.Dir(s.JobPath), defaultSchemaFile); fileExists(p) {
				path = p
			}
		}
	}
	p := &mergeload.Provisioner{
		APIRoot:    s.APIURL,
		Headers:    headers,
		RecordType: mergeload.IncidentRecordType,
		Client:     &http.Client{Timeout: s.HTTPTimeout},
	}
	id, err := p.CreateSchema(ctx, path)
	if err != nil {
		return "", fmt.Errorf("provision schema: %w", err)
	}
	return id, nil
}
