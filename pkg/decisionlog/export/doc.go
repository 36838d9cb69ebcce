// Package export writes decision records as JSON, CSV or a text grid.
//
// JSON and CSV support streaming from decisionlog.Storage.QueryStream so
// large exports never hold every record in memory:
//
//	recordsCh, errCh, err := store.QueryStream(ctx, q)
//	if err != nil {
//		return err
//	}
//	if err := export.NewCSVExporter(true).ExportStream(ctx, recordsCh, w); err != nil {
//		return err
//	}
//	return <-errCh
package export
