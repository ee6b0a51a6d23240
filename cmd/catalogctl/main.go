// Package main: catalogctl, CLI của household catalog reconciliation engine.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"household-catalog/internal/domains/catalog/model"
	"household-catalog/pkg/container"
	"household-catalog/pkg/logger"
)

var (
	// --json flag
	jsonOutput bool

	// app: tạo trong PersistentPreRunE, đóng trong execute()
	app *container.Container
)

func main() {
	if err := execute(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// execute chạy command rồi luôn đóng container.
// Cobra bỏ qua PersistentPostRunE khi RunE trả lỗi nên cleanup phải nằm ở đây.
func execute(args []string) error {
	defer closeApp()

	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

var rootCmd = &cobra.Command{
	Use:   "catalogctl",
	Short: "Household book catalog reconciliation",
	Long: `catalogctl keeps the local working copy of the household book catalog
in step with the active backing store (postgres, mongo or the catalog API).

Backing store, local cache and dispatch mode are read from the environment
(STORE_DRIVER, LOCAL_CACHE_DRIVER, SYNC_DISPATCH, ...).`,
	SilenceUsage:      true,
	PersistentPreRunE: initApp,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")

	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(repairCmd)
	rootCmd.AddCommand(recalcCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(mapCmd)
	rootCmd.AddCommand(bookCmd)
	rootCmd.AddCommand(categoryCmd)
	rootCmd.AddCommand(pendingCmd)
}

// initApp: load .env rồi build container
func initApp(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()
	logger.Init(os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"))

	c, err := container.NewContainer()
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	app = c
	return nil
}

// closeApp chờ các recalc inline xong rồi mới đóng local cache. Gọi nhiều lần vẫn an toàn.
func closeApp() {
	if app != nil {
		app.Cleanup()
		app = nil
	}
}

// printJSON in v ra stdout dạng JSON có indent
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printResult in kết quả mutation. Remote lỗi chỉ là warning,
// không phải lỗi command vì local đã ghi xong.
func printResult(res *model.MutationResult) error {
	if jsonOutput {
		return printJSON(res)
	}

	fmt.Printf("%s %s: remote %s\n", res.Op, res.ID, res.Remote)
	if res.Partial() {
		fmt.Printf("  warning: %v\n", res.RemoteErr)
	}
	if res.Queued {
		fmt.Println("  queued for the next reconcile pass")
	}
	if len(res.Recalc) > 0 {
		fmt.Printf("  recalculating: %v\n", res.Recalc)
	}
	return nil
}

func printBook(b model.Book) {
	status := string(b.BorrowStatus)
	if b.BorrowStatus == model.BorrowLent && b.Borrower != "" {
		status += " to " + b.Borrower
	}
	fmt.Printf("%-40s %-40q %-20s %v [%s]\n", b.ID, b.Title, b.PrimaryCategory, b.Categories, status)
}

func printCategory(c model.Category) {
	fmt.Printf("%-40s %-30q count=%d\n", c.ID, c.Name, c.Count)
}
