package mergeload_test

import (
	"context"
	"fmt"
	"iter"
	"os"
	"path/filepath"

	"github.com/paulmach/orb"

	"github.com/bjaus/mergeload"
)

// Source is a source record type for examples.
type Source struct {
	ID   int
	Name string
}

// Target is a target record type for examples.
type Target struct {
	ID   int
	Name string
}

// =============================================================================
// Example: Basic Pipeline
// =============================================================================

type basicJob struct {
	rows []Source
}

func (j *basicJob) Extract(_ context.Context) iter.Seq2[Source, error] {
	return func(yield func(Source, error) bool) {
		for _, r := range j.rows {
			if !yield(r, nil) {
				return
			}
		}
	}
}

func (j *basicJob) Transform(_ context.Context, src Source) (Target, error) {
	return Target{ID: src.ID, Name: src.Name + "!"}, nil
}

func (j *basicJob) Load(_ context.Context, r Target) error {
	fmt.Printf("loaded: %d %s\n", r.ID, r.Name) //nolint:forbidigo // example output for godoc
	return nil
}

func ExampleNew() {
	job := &basicJob{
		rows: []Source{
			{ID: 1, Name: "Alice"},
			{ID: 2, Name: "Bob"},
		},
	}

	err := mergeload.New[Source, Target](job).Run(context.Background())
	if err != nil {
		fmt.Println("error:", err)
	}

	// Output:
	// loaded: 1 Alice!
	// loaded: 2 Bob!
}

// =============================================================================
// Example: Merge Join
// =============================================================================

// exampleSources writes two small extracts sorted by "id".
func exampleSources() (string, []mergeload.SourceFile) {
	dir, err := os.MkdirTemp("", "mergeload-example")
	if err != nil {
		panic(err)
	}
	write := func(name, content string) mergeload.SourceFile {
		path := filepath.Join(dir, name+".csv")
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			panic(err)
		}
		return mergeload.SourceFile{Name: name, Path: path}
	}
	return dir, []mergeload.SourceFile{
		write("incidents", "id,kind\n1,crash\n2,fire\n"),
		write("vehicles", "id,plate\n1,ABC\n1,XYZ\n3,QRS\n"),
	}
}

func ExampleMerge() {
	dir, files := exampleSources()
	defer os.RemoveAll(dir)

	err := mergeload.WithSources(context.Background(), files, func(cursors []*mergeload.Cursor) error {
		for t, err := range mergeload.Merge(cursors, "id") {
			if err != nil {
				return err
			}
			fmt.Println(t.ID, t.Source)
		}
		return nil
	})
	if err != nil {
		fmt.Println("error:", err)
	}

	// Output:
	// 1 incidents
	// 1 vehicles
	// 1 vehicles
	// 2 incidents
	// 3 vehicles
}

func ExampleGroupTriples() {
	dir, files := exampleSources()
	defer os.RemoveAll(dir)

	err := mergeload.WithSources(context.Background(), files, func(cursors []*mergeload.Cursor) error {
		for g, err := range mergeload.GroupTriples(mergeload.Merge(cursors, "id")) {
			if err != nil {
				return err
			}
			fmt.Printf("%s: incidents=%d vehicles=%d\n", g.ID, len(g.Rows["incidents"]), len(g.Rows["vehicles"]))
		}
		return nil
	})
	if err != nil {
		fmt.Println("error:", err)
	}

	// Output:
	// 1: incidents=1 vehicles=2
	// 2: incidents=1 vehicles=0
	// 3: incidents=0 vehicles=1
}

// =============================================================================
// Example: Derived Fields
// =============================================================================

func ExampleClock_Parse() {
	clock, err := mergeload.NewClock("America/Sao_Paulo", "N")
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	for _, hora := range []string{"14:05", "N"} {
		t, err := clock.Parse("2018-07-15", hora)
		if err != nil {
			fmt.Println("error:", err)
			continue
		}
		fmt.Println(clock.Format(t))
	}

	// Output:
	// 2018-07-15T14:05:00-03:00
	// 2018-07-15T00:00:00-03:00
}

func ExamplePointWKT() {
	fmt.Println(mergeload.PointWKT(orb.Point{-46.633, -23.5505}))

	// Output:
	// POINT (-46.633 -23.5505)
}
