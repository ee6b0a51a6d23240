package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"household-catalog/internal/domains/catalog/model"
)

var (
	bookTitle       string
	bookAuthor      string
	bookPublisher   string
	bookISBN        string
	bookPublishDate string
	bookDescription string
	bookCoverURL    string
	bookPages       int
	bookPrice       string
	bookCategories  []string
	bookLegacyID    string

	bookListCategory string
	bookListSearch   string

	borrowAt string
)

var bookCmd = &cobra.Command{
	Use:   "book",
	Short: "Add, edit, lend and return books",
}

func init() {
	bookCmd.AddCommand(bookListCmd)
	bookCmd.AddCommand(bookAddCmd)
	bookCmd.AddCommand(bookUpdateCmd)
	bookCmd.AddCommand(bookDeleteCmd)
	bookCmd.AddCommand(bookLendCmd)
	bookCmd.AddCommand(bookReturnCmd)

	for _, c := range []*cobra.Command{bookAddCmd, bookUpdateCmd} {
		c.Flags().StringVar(&bookTitle, "title", "", "title")
		c.Flags().StringVar(&bookAuthor, "author", "", "author")
		c.Flags().StringVar(&bookPublisher, "publisher", "", "publisher")
		c.Flags().StringVar(&bookISBN, "isbn", "", "ISBN")
		c.Flags().StringVar(&bookPublishDate, "publish-date", "", "publish date (free text)")
		c.Flags().StringVar(&bookDescription, "description", "", "description")
		c.Flags().StringVar(&bookCoverURL, "cover-url", "", "cover image URL")
		c.Flags().IntVar(&bookPages, "pages", 0, "page count")
		c.Flags().StringVar(&bookPrice, "price", "", "price")
		c.Flags().StringSliceVar(&bookCategories, "category", nil, "category name (repeatable)")
	}
	bookAddCmd.Flags().StringVar(&bookLegacyID, "legacy-id", "", "id of this book in a previous store")
	_ = bookAddCmd.MarkFlagRequired("title")

	bookListCmd.Flags().StringVar(&bookListCategory, "category", "", "only books in this category")
	bookListCmd.Flags().StringVar(&bookListSearch, "search", "", "title or author contains")

	bookLendCmd.Flags().StringVar(&borrowAt, "at", "", "borrow date (RFC3339 or YYYY-MM-DD, default now)")
	bookReturnCmd.Flags().StringVar(&borrowAt, "at", "", "return date (RFC3339 or YYYY-MM-DD, default now)")
}

var bookListCmd = &cobra.Command{
	Use:   "list",
	Short: "List books in the working copy",
	RunE: func(cmd *cobra.Command, args []string) error {
		search := strings.ToLower(bookListSearch)
		books := make([]model.Book, 0)
		for _, b := range app.LocalCache.Books() {
			if bookListCategory != "" && !b.HasCategory(bookListCategory) {
				continue
			}
			if search != "" &&
				!strings.Contains(strings.ToLower(b.Title), search) &&
				!strings.Contains(strings.ToLower(b.Author), search) {
				continue
			}
			books = append(books, b)
		}

		if jsonOutput {
			return printJSON(books)
		}
		for _, b := range books {
			printBook(b)
		}
		fmt.Printf("%d books\n", len(books))
		return nil
	},
}

var bookAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a book",
	Long: `Add writes the book to the working copy first, then to the store.

Example:
  catalogctl book add --title "Dune" --author "Frank Herbert" --category Fiction --category SciFi`,
	RunE: func(cmd *cobra.Command, args []string) error {
		price, err := parsePrice(bookPrice)
		if err != nil {
			return err
		}
		res, err := app.Coordinator.Add(cmd.Context(), model.BookInput{
			LegacyID:    bookLegacyID,
			Title:       bookTitle,
			Author:      bookAuthor,
			Publisher:   bookPublisher,
			ISBN:        bookISBN,
			PublishDate: bookPublishDate,
			Description: bookDescription,
			CoverURL:    bookCoverURL,
			Pages:       bookPages,
			Price:       price,
			Categories:  bookCategories,
		})
		if err != nil {
			return err
		}
		return printResult(res)
	},
}

var bookUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update the given fields of a book",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		patch, err := patchFromFlags(cmd)
		if err != nil {
			return err
		}
		if patch.IsEmpty() {
			return fmt.Errorf("nothing to update")
		}
		res, err := app.Coordinator.Update(cmd.Context(), args[0], patch)
		if err != nil {
			return err
		}
		return printResult(res)
	},
}

var bookDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a book",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := app.Coordinator.Delete(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printResult(res)
	},
}

var bookLendCmd = &cobra.Command{
	Use:   "lend <id> <borrower>",
	Short: "Mark a book as lent",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		at, err := parseDate(borrowAt)
		if err != nil {
			return err
		}
		res, err := app.Coordinator.Lend(cmd.Context(), args[0], args[1], at)
		if err != nil {
			return err
		}
		return printResult(res)
	},
}

var bookReturnCmd = &cobra.Command{
	Use:   "return <id>",
	Short: "Mark a lent book as returned",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		at, err := parseDate(borrowAt)
		if err != nil {
			return err
		}
		res, err := app.Coordinator.Return(cmd.Context(), args[0], at)
		if err != nil {
			return err
		}
		return printResult(res)
	},
}

// patchFromFlags: chỉ set field có flag được truyền vào
func patchFromFlags(cmd *cobra.Command) (model.BookPatch, error) {
	var patch model.BookPatch
	flags := cmd.Flags()

	strs := []struct {
		name string
		val  *string
		dst  **string
	}{
		{"title", &bookTitle, &patch.Title},
		{"author", &bookAuthor, &patch.Author},
		{"publisher", &bookPublisher, &patch.Publisher},
		{"isbn", &bookISBN, &patch.ISBN},
		{"publish-date", &bookPublishDate, &patch.PublishDate},
		{"description", &bookDescription, &patch.Description},
		{"cover-url", &bookCoverURL, &patch.CoverURL},
	}
	for _, s := range strs {
		if flags.Changed(s.name) {
			v := *s.val
			*s.dst = &v
		}
	}

	if flags.Changed("pages") {
		pages := bookPages
		patch.Pages = &pages
	}
	if flags.Changed("price") {
		price, err := parsePrice(bookPrice)
		if err != nil {
			return patch, err
		}
		patch.Price = &price
	}
	if flags.Changed("category") {
		cats := append([]string{}, bookCategories...)
		patch.Categories = &cats
	}
	return patch, nil
}

func parsePrice(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid price %q: %w", s, err)
	}
	return d, nil
}

// parseDate: rỗng → zero time, Coordinator dùng thời điểm hiện tại
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return t.UTC(), nil
}
