// Package linkgo is an embeddable probabilistic record linkage engine.
//
// Linkgo finds records that refer to the same real-world entity, either
// across two tables (linking) or within one table (dedupe). The pipeline
// has four stages:
//
//	blocking    selects candidate pairs cheaply instead of comparing n^2
//	comparison  labels each pair on discrete agreement levels per dimension
//	scoring     turns level vectors into log-odds match scores
//	            (Fellegi-Sunter model, trainable by EM without labels)
//	clustering  connects scored pairs above a threshold into entities
//
// # Quick Start
//
//	people := source.NewMemoryTable("people", rows)
//
//	name, _ := compare.NewDimension("name", "name", []compare.Level{
//	    {Name: "exact", Matches: compare.Exact()},
//	    {Name: "fuzzy", Matches: compare.JaccardAtLeast(0.6, nil)},
//	})
//	zip, _ := compare.NewDimension("zip", "zip", []compare.Level{
//	    {Name: "exact", Matches: compare.Exact()},
//	})
//
//	linker, _ := linkgo.Dedupe(people,
//	    []block.Blocker{block.MustKey("zip")},
//	    []compare.Comparer{name, zip},
//	)
//
//	if _, err := linker.Train(ctx, fs.TrainOptions{}); err != nil {
//	    return err
//	}
//	result, _ := linker.Resolve(ctx, 2.0)
//
// Scores live in log10-odds space: +1 means ten times more likely a match
// than the prior, so thresholds of 1 to 3 are typical. Scores can be
// positive or negative infinity when a level's m or u probability is zero;
// that is deliberate and survives spill files and clustering.
//
// Trained weights persist as documents through the fs package and any
// blobstore backend (local disk, S3, MinIO, in-memory).
package linkgo
