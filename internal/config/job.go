package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/bjaus/mergeload"
)

// Column maps one CSV column into one record field
type Column struct {
	Column string `yaml:"column"`
	Field  string `yaml:"field,omitempty"` // defaults to Column
	Cast   string `yaml:"cast,omitempty"`  // defaults to string
}

// Source is one input file and where its rows land in the record
type Source struct {
	Name    string   `yaml:"source"`
	File    string   `yaml:"file"`
	Field   string   `yaml:"field"`
	Columns []Column `yaml:"columns"`
}

// Derived names the anchor columns computed fields come from
type Derived struct {
	Date      string `yaml:"date"`
	Time      string `yaml:"time"`
	Longitude string `yaml:"longitude"`
	Latitude  string `yaml:"latitude"`
}

// Job describes a merge-join load: which files to read, how to join them and
// how rows map into the record
type Job struct {
	JoinColumn  string   `yaml:"join_column"`
	TimeZone    string   `yaml:"timezone,omitempty"`
	UnknownTime string   `yaml:"unknown_time,omitempty"`
	Anchor      Source   `yaml:"anchor"`
	Children    []Source `yaml:"children"`
	Derived     Derived  `yaml:"derived"`
}

// LoadJob reads a YAML job file
func LoadJob(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var j Job
	if err := yaml.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse job %s: %w", path, err)
	}
	if err := j.Validate(); err != nil {
		return nil, fmt.Errorf("job %s: %w", path, err)
	}
	return &j, nil
}

// Validate checks that the job names everything a run needs
func (j *Job) Validate() error {
	var errs []error
	if j.JoinColumn == "" {
		errs = append(errs, errors.New("join_column is required"))
	}
	seen := map[string]bool{}
	for i, s := range append([]Source{j.Anchor}, j.Children...) {
		if s.Name == "" || s.File == "" || s.Field == "" {
			errs = append(errs, fmt.Errorf("source %d needs source, file and field", i))
		}
		if seen[s.Name] {
			errs = append(errs, fmt.Errorf("source %q is listed twice", s.Name))
		}
		seen[s.Name] = true
		for _, c := range s.Columns {
			if c.Column == "" {
				errs = append(errs, fmt.Errorf("source %q has a mapping without a column", s.Name))
			}
			if _, err := mergeload.LookupCast(c.Cast); err != nil {
				errs = append(errs, fmt.Errorf("source %q column %q: %w", s.Name, c.Column, err))
			}
		}
	}
	d := j.Derived
	if d.Date == "" || d.Longitude == "" || d.Latitude == "" {
		errs = append(errs, errors.New("derived needs date, longitude and latitude columns"))
	}
	return errors.Join(errs...)
}

// Files returns the input files under dir with the anchor first
func (j *Job) Files(dir string) []mergeload.SourceFile {
	files := make([]mergeload.SourceFile, 0, len(j.Children)+1)
	for _, s := range append([]Source{j.Anchor}, j.Children...) {
		files = append(files, mergeload.SourceFile{Name: s.Name, Path: filepath.Join(dir, s.File)})
	}
	return files
}

// Transformer builds the record transformer for this job
func (j *Job) Transformer(schemaID string) (*mergeload.RecordTransformer, error) {
	clock, err := mergeload.NewClock(j.TimeZone, j.UnknownTime)
	if err != nil {
		return nil, err
	}
	anchor, err := block(j.Anchor)
	if err != nil {
		return nil, err
	}
	rt := &mergeload.RecordTransformer{
		Anchor:   anchor,
		SchemaID: schemaID,
		Clock:    clock,
		Derived: mergeload.Derived{
			DateColumn:      j.Derived.Date,
			TimeColumn:      j.Derived.Time,
			LongitudeColumn: j.Derived.Longitude,
			LatitudeColumn:  j.Derived.Latitude,
		},
	}
	for _, s := range j.Children {
		b, err := block(s)
		if err != nil {
			return nil, err
		}
		rt.Children = append(rt.Children, b)
	}
	return rt, nil
}

func block(s Source) (mergeload.Block, error) {
	b := mergeload.Block{Source: s.Name, Field: s.Field}
	for _, c := range s.Columns {
		fn, err := mergeload.LookupCast(c.Cast)
		if err != nil {
			return b, fmt.Errorf("source %q column %q: %w", s.Name, c.Column, err)
		}
		field := c.Field
		if field == "" {
			field = c.Column
		}
		b.Mappings = append(b.Mappings, mergeload.FieldMapping{Column: c.Column, Field: field, Cast: fn})
	}
	return b, nil
}

// IncidentJob is the built-in layout for the schema v3 incident extracts:
// acidentes.csv joined with veiculos.csv and vitimas.csv on CdAcidente
func IncidentJob() *Job {
	return &Job{
		JoinColumn:  "CdAcidente",
		TimeZone:    mergeload.DefaultTimeZone,
		UnknownTime: mergeload.DefaultUnknownTime,
		Anchor: Source{
			Name:  "record",
			File:  "acidentes.csv",
			Field: "driverIncidentDetails",
			Columns: []Column{
				{Column: "Log1", Cast: "int"},
				{Column: "Numero", Cast: "int"},
				{Column: "CodReferencia", Cast: "int"},
				{Column: "Log2", Cast: "int"},
				{Column: "Log3", Cast: "int"},
				{Column: "CodIntersecao", Cast: "int"},
				{Column: "Jurisdicao", Cast: "string"},
				{Column: "CodNatureza", Cast: "int"},
				{Column: "TipoCruzamento", Cast: "int"},
				{Column: "INTERSEÇÃO?", Cast: "string"},
				{Column: "Natureza", Cast: "string"},
			},
		},
		Children: []Source{
			{
				Name:  "vehicles",
				File:  "veiculos.csv",
				Field: "driverVehicle",
				Columns: []Column{
					{Column: "CdVeiculo", Cast: "int"},
					{Column: "Ano", Cast: "int"},
					{Column: "TipoVeiculo", Cast: "string"},
					{Column: "Linha", Cast: "int"},
				},
			},
			{
				Name:  "people",
				File:  "vitimas.csv",
				Field: "driverPerson",
				Columns: []Column{
					{Column: "CdPessoa", Cast: "int"},
					{Column: "CdGravidadeLesao", Cast: "int"},
					{Column: "Sexo", Cast: "string"},
					{Column: "TipoPessoa", Cast: "int"},
					{Column: "CdVeiculo", Cast: "int"},
					{Column: "Idade", Cast: "int"},
				},
			},
		},
		Derived: Derived{
			Date:      "Data",
			Time:      "Hora",
			Longitude: "Longitude",
			Latitude:  "Latitude",
		},
	}
}
