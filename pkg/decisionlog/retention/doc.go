// Package retention prunes decision records by age and by count.
//
//	pruner := retention.NewPruner(store, &retention.Config{
//	    RetentionDays: 30,
//	    PruneSchedule: "0 3 * * *", // Daily at 3 AM
//	    MaxRecords:    1_000_000,
//	})
//	if err := pruner.Start(ctx); err != nil {
//	    return err
//	}
//	defer pruner.Stop()
//
// With ArchiveBeforeDelete set, records are written as JSON under
// ArchivePath before they are removed.
package retention
