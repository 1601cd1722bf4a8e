package main

import (
	"chat-relay/infrastructure/storage"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/database"
	"github.com/olekukonko/tablewriter"
)

// Dumps the relay store as a table:
//
//	go run ./tools -db ./data/badger -prefix msg:
func main() {
	dbPath := flag.String("db", database.DefaultPath, "Path to badger DB")
	// Empty prefix scans every record, indexes included
	prefix := flag.String("prefix", "", "Prefix to scan (msg:, user:, tok:, msgid:)")
	noColor := flag.Bool("no-color", false, "Disable colors")
	flag.Parse()

	if *noColor {
		color.Disable()
	}

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Type", "Timestamp", "Owner", "Detail"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	counts := map[string]int{}
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			rec := storage.DescribeRecord(string(item.Key()), value)
			counts[rec.Kind]++

			at := ""
			if !rec.At.IsZero() {
				at = rec.At.Local().Format("2006-01-02 15:04:05")
			}
			table.Append([]string{rec.Key, paint(rec.Kind), at, rec.Owner, rec.Detail})
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	table.Render()
	summary := make([]string, 0, len(counts))
	for kind, n := range counts {
		summary = append(summary, fmt.Sprintf("%s=%d", kind, n))
	}
	fmt.Println(color.Bold.Render("Total: " + strings.Join(summary, " ")))
}

func paint(kind string) string {
	switch kind {
	case storage.KindMessage:
		return color.Green.Render(kind)
	case storage.KindUser:
		return color.Cyan.Render(kind)
	case storage.KindUnknown:
		return color.Red.Render(kind)
	default:
		return color.Gray.Render(kind)
	}
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)

	db, err := badger.Open(opts)
	if err != nil {
		// A crashed relay may leave the value log untruncated
		if strings.Contains(err.Error(), "Log truncate required") {
			fmt.Println(color.Yellow.Render("Value log needs truncation, repairing"))
			repairOpts := badger.DefaultOptions(path).
				WithLogger(nil).WithBypassLockGuard(true)

			db, err = badger.Open(repairOpts)
			if err != nil {
				return nil, fmt.Errorf("repair failed: %w", err)
			}
			_ = db.Close()
			return badger.Open(opts)
		}
		return nil, err
	}
	return db, nil
}
