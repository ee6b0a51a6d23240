package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"household-catalog/internal/domains/catalog/localcache"
	"household-catalog/internal/domains/catalog/model"
	"household-catalog/internal/domains/catalog/repository"
	"household-catalog/pkg/logger"
)

// CoordinatorConfig gom các giá trị cấu hình mà Coordinator cần
type CoordinatorConfig struct {
	FallbackCategory string
	ReservedCategory string
}

// Coordinator điều phối mọi thay đổi: ghi local trước, remote best effort,
// sau đó dispatch recalculation. Lỗi remote không làm hỏng thao tác của user.
type Coordinator struct {
	repo       repository.RepositoryInterface
	cache      *localcache.Store
	ids        repository.IdentityResolver
	dispatcher RecalcDispatcher
	pending    *PendingWriteQueue // nil = tắt, hành vi fire-and-forget
	cfg        CoordinatorConfig

	categoryFlight singleflight.Group
	now            func() time.Time
}

var _ MutationCoordinator = (*Coordinator)(nil)

func NewCoordinator(
	repo repository.RepositoryInterface,
	cache *localcache.Store,
	ids repository.IdentityResolver,
	dispatcher RecalcDispatcher,
	pending *PendingWriteQueue,
	cfg CoordinatorConfig,
) *Coordinator {
	if cfg.FallbackCategory == "" {
		cfg.FallbackCategory = "Other"
	}
	return &Coordinator{
		repo:       repo,
		cache:      cache,
		ids:        ids,
		dispatcher: dispatcher,
		pending:    pending,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// ========================================
// BOOK MUTATIONS
// ========================================

// Add: validate → temp id → cache → CreateBook → rekey → ensure categories → recalc
func (c *Coordinator) Add(ctx context.Context, in model.BookInput) (*model.MutationResult, error) {
	res := &model.MutationResult{Op: model.OpAdd}
	res.Transition(model.StateRequested)

	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidBook, err)
	}

	book := in.ToBook(c.cfg.FallbackCategory, c.now())
	book.Categories = c.withoutReserved(book.Categories)
	book.PrimaryCategory = model.PrimaryFor(book.Categories, c.cfg.FallbackCategory)
	tempID := model.TempIDPrefix + uuid.NewString()
	book.ID = tempID

	// 1. Local
	if err := c.cache.PutBook(ctx, book); err != nil {
		logger.ErrorWithFields("coordinator: failed to persist local cache", err, map[string]interface{}{"book_id": tempID})
	}
	res.Transition(model.StateLocalApplied)

	// 2. Remote
	res.Transition(model.StateRemoteAttempted)
	remote := book.Clone()
	remote.ID = ""
	id, err := c.repo.CreateBook(ctx, &remote)
	if err != nil {
		c.remoteFailed(ctx, res, err, PendingWrite{Kind: PendingCreateBook, LocalID: tempID})
	} else {
		if _, rerr := c.cache.RekeyBook(ctx, tempID, id); rerr != nil {
			logger.ErrorWithFields("coordinator: failed to persist local cache", rerr, map[string]interface{}{"book_id": id})
		}
		c.ids.Record(ctx, tempID, id)
		book.ID = id
		res.Remote = model.RemoteAcked
		res.Transition(model.StateRemoteAcked)
	}
	res.ID = book.ID

	// 3. Categories + recalculation
	c.ensureCategories(ctx, book.Categories)
	c.dispatch(ctx, res, book.Categories)

	res.Book = &book
	res.Transition(model.StateDone)
	return res, nil
}

// Update: last write wins ở cả cache và store
func (c *Coordinator) Update(ctx context.Context, id string, patch model.BookPatch) (*model.MutationResult, error) {
	res := &model.MutationResult{Op: model.OpUpdate}
	res.Transition(model.StateRequested)

	if err := patch.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidBook, err)
	}
	if patch.Categories != nil {
		cats := c.withoutReserved(model.UniqueNames(trimNames(*patch.Categories)))
		patch.Categories = &cats
		if patch.PrimaryCategory == nil || !contains(cats, *patch.PrimaryCategory) {
			primary := model.PrimaryFor(cats, c.cfg.FallbackCategory)
			patch.PrimaryCategory = &primary
		}
	}

	before, after, err := c.writeBook(ctx, res, c.ids.Resolve(id), patch)
	if err != nil {
		return nil, err
	}

	if patch.TouchesCategories() && !sameSet(before.Categories, after.Categories) {
		c.ensureCategories(ctx, after.Categories)
		c.dispatch(ctx, res, model.UnionNames(before.Categories, after.Categories))
	}

	res.Book = &after
	res.Transition(model.StateDone)
	return res, nil
}

// Delete: xóa local, remote NotFound coi như đã xóa
func (c *Coordinator) Delete(ctx context.Context, id string) (*model.MutationResult, error) {
	res := &model.MutationResult{Op: model.OpDelete}
	res.Transition(model.StateRequested)

	resolved := c.ids.Resolve(id)
	res.ID = resolved

	removed, inCache, err := c.cache.RemoveBook(ctx, resolved)
	if err != nil {
		logger.ErrorWithFields("coordinator: failed to persist local cache", err, map[string]interface{}{"book_id": resolved})
	}
	if !inCache && model.IsTemporary(resolved) {
		return nil, model.ErrBookNotFound
	}
	if inCache {
		res.Transition(model.StateLocalApplied)
	}

	if model.IsTemporary(resolved) {
		// create vẫn đang chờ trong queue, flush sẽ tự bỏ
		res.Remote = model.RemoteSkipped
	} else {
		res.Transition(model.StateRemoteAttempted)
		err := c.repo.DeleteBook(ctx, resolved)
		switch {
		case err == nil, model.IsNotFound(err) && inCache:
			res.Remote = model.RemoteAcked
			res.Transition(model.StateRemoteAcked)
			c.supersedePending(ctx, resolved)
		case model.IsNotFound(err):
			// không có ở cả cache lẫn store
			return nil, model.ErrBookNotFound
		default:
			c.remoteFailed(ctx, res, err, PendingWrite{Kind: PendingDeleteBook, TargetID: resolved})
		}
	}

	if inCache {
		c.dispatch(ctx, res, removed.Categories)
		res.Book = &removed
	}
	res.Transition(model.StateDone)
	return res, nil
}

// Lend đánh dấu book đang được mượn và mở một borrow record
func (c *Coordinator) Lend(ctx context.Context, id, borrower string, at time.Time) (*model.MutationResult, error) {
	borrower = strings.TrimSpace(borrower)
	if borrower == "" {
		return nil, fmt.Errorf("%w: borrower is required", model.ErrInvalidBook)
	}
	resolved := c.ids.Resolve(id)
	book, ok := c.cache.Book(resolved)
	if !ok {
		return nil, model.ErrBookNotFound
	}
	if book.BorrowStatus == model.BorrowLent {
		return nil, model.ErrAlreadyLent
	}
	if at.IsZero() {
		at = c.now()
	}

	status := model.BorrowLent
	history := append(append([]model.BorrowRecord{}, book.BorrowHistory...), model.BorrowRecord{
		Borrower:   borrower,
		BorrowDate: at,
	})
	return c.Update(ctx, resolved, model.BookPatch{
		BorrowStatus:  &status,
		Borrower:      &borrower,
		BorrowDate:    &at,
		BorrowHistory: &history,
	})
}

// Return đóng borrow record đang mở
func (c *Coordinator) Return(ctx context.Context, id string, at time.Time) (*model.MutationResult, error) {
	resolved := c.ids.Resolve(id)
	book, ok := c.cache.Book(resolved)
	if !ok {
		return nil, model.ErrBookNotFound
	}
	if book.BorrowStatus != model.BorrowLent {
		return nil, model.ErrNotLent
	}
	if at.IsZero() {
		at = c.now()
	}

	history := append([]model.BorrowRecord{}, book.BorrowHistory...)
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].ReturnDate == nil {
			returned := at
			history[i].ReturnDate = &returned
			break
		}
	}

	status := model.BorrowAvailable
	noBorrower := ""
	return c.Update(ctx, resolved, model.BookPatch{
		BorrowStatus:  &status,
		Borrower:      &noBorrower,
		ReturnDate:    &at,
		BorrowHistory: &history,
	})
}

// ========================================
// CATEGORY MUTATIONS
// ========================================

// CreateCategory: tên trùng hoặc tên reserved → ConstraintViolation
func (c *Coordinator) CreateCategory(ctx context.Context, in model.CategoryInput) (*model.Category, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidCategory, err)
	}
	category := in.ToCategory(c.now())
	if c.isReserved(category.Name) {
		return nil, model.ErrReservedCategory
	}
	if _, exists := c.cache.CategoryByName(category.Name); exists {
		return nil, model.ErrDuplicateCategory
	}

	id, err := c.repo.CreateCategory(ctx, &category)
	if err != nil {
		return nil, err
	}
	category.ID = id
	if err := c.cache.PutCategory(ctx, category); err != nil {
		logger.ErrorWithFields("coordinator: failed to persist local cache", err, map[string]interface{}{"category_id": id})
	}

	// book có thể đã tham chiếu tên này từ trước
	if c.cache.CountBooks(category.Name) != category.Count {
		if err := c.dispatcher.Dispatch(ctx, []string{category.Name}); err != nil {
			logger.Error("coordinator: failed to dispatch recalculation", err)
		}
	}

	logger.Info("category created", map[string]interface{}{"category_id": id, "name": category.Name})
	return &category, nil
}

// RenameCategory đổi tên rồi cascade tên mới xuống mọi book đang dùng tên cũ
func (c *Coordinator) RenameCategory(ctx context.Context, id, newName string) (*CategoryChange, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return nil, fmt.Errorf("%w: category name is required", model.ErrInvalidCategory)
	}
	if c.isReserved(newName) {
		return nil, model.ErrReservedCategory
	}

	category, err := c.loadCategory(ctx, c.ids.Resolve(id))
	if err != nil {
		return nil, err
	}
	oldName := category.Name
	if oldName == newName {
		return &CategoryChange{Category: category}, nil
	}
	if existing, exists := c.cache.CategoryByName(newName); exists && existing.ID != category.ID {
		return nil, model.ErrDuplicateCategory
	}

	if err := c.repo.UpdateCategory(ctx, category.ID, model.CategoryPatch{Name: &newName}); err != nil {
		return nil, err
	}
	category.Name = newName
	if err := c.cache.PutCategory(ctx, category); err != nil {
		logger.ErrorWithFields("coordinator: failed to persist local cache", err, map[string]interface{}{"category_id": category.ID})
	}

	change := &CategoryChange{Category: category}
	c.cascade(ctx, oldName, change, func(cats []string) []string {
		out := make([]string, 0, len(cats))
		for _, n := range cats {
			if n == oldName {
				n = newName
			}
			out = append(out, n)
		}
		return model.UniqueNames(out)
	})

	if err := c.dispatcher.Dispatch(ctx, []string{oldName, newName}); err != nil {
		logger.Error("coordinator: failed to dispatch recalculation", err)
	}
	logger.Info("category renamed", map[string]interface{}{
		"category_id":   category.ID,
		"from":          oldName,
		"to":            newName,
		"books_updated": change.BooksUpdated,
		"books_failed":  change.BooksFailed,
	})
	return change, nil
}

// DeleteCategory gỡ tên khỏi mọi book rồi xóa category
func (c *Coordinator) DeleteCategory(ctx context.Context, id string) (*CategoryChange, error) {
	category, err := c.loadCategory(ctx, c.ids.Resolve(id))
	if err != nil {
		return nil, err
	}

	change := &CategoryChange{Category: category}
	c.cascade(ctx, category.Name, change, func(cats []string) []string {
		out := make([]string, 0, len(cats))
		for _, n := range cats {
			if n != category.Name {
				out = append(out, n)
			}
		}
		return out
	})

	if !model.IsTemporary(category.ID) {
		if err := c.repo.DeleteCategory(ctx, category.ID); err != nil && !model.IsNotFound(err) {
			return change, fmt.Errorf("delete category: %w", err)
		}
	}
	if _, _, err := c.cache.RemoveCategory(ctx, category.ID); err != nil {
		logger.ErrorWithFields("coordinator: failed to persist local cache", err, map[string]interface{}{"category_id": category.ID})
	}

	logger.Info("category deleted", map[string]interface{}{
		"category_id":   category.ID,
		"name":          category.Name,
		"books_updated": change.BooksUpdated,
	})
	return change, nil
}

// ========================================
// PENDING WRITES
// ========================================

// FlushPending gửi lại các lần ghi remote đã thất bại
func (c *Coordinator) FlushPending(ctx context.Context) (*FlushReport, error) {
	if c.pending == nil {
		return &FlushReport{}, nil
	}
	report, err := c.pending.Flush(ctx, c.applyPending)
	if report != nil && report.Attempted > 0 {
		logger.Info("pending: flush done", map[string]interface{}{
			"attempted":  report.Attempted,
			"applied":    report.Applied,
			"superseded": report.Superseded,
			"dropped":    report.Dropped,
			"remaining":  report.Remaining,
		})
	}
	return report, err
}

func (c *Coordinator) applyPending(ctx context.Context, w PendingWrite) error {
	switch w.Kind {
	case PendingCreateBook:
		// lấy state mới nhất trong cache, bao gồm các update sau create
		book, ok := c.cache.Book(w.LocalID)
		if !ok {
			return errSuperseded
		}
		remote := book.Clone()
		remote.ID = ""
		id, err := c.repo.CreateBook(ctx, &remote)
		if err != nil {
			return err
		}
		if _, err := c.cache.RekeyBook(ctx, w.LocalID, id); err != nil {
			logger.ErrorWithFields("pending: failed to persist local cache", err, map[string]interface{}{"book_id": id})
		}
		c.ids.Record(ctx, w.LocalID, id)
		return nil

	case PendingUpdateBook:
		target := c.ids.Resolve(w.TargetID)
		if model.IsTemporary(target) || w.Patch == nil {
			return errSuperseded
		}
		return c.repo.UpdateBook(ctx, target, *w.Patch)

	case PendingDeleteBook:
		target := c.ids.Resolve(w.TargetID)
		if model.IsTemporary(target) {
			return errSuperseded
		}
		if err := c.repo.DeleteBook(ctx, target); err != nil && !model.IsNotFound(err) {
			return err
		}
		return nil

	case PendingCreateCategory:
		category, ok := c.cache.Category(w.LocalID)
		if !ok {
			return errSuperseded
		}
		remote := category
		remote.ID = ""
		id, err := c.repo.CreateCategory(ctx, &remote)
		if errors.Is(err, model.ErrDuplicateCategory) {
			existing, qerr := c.findCategory(ctx, category.Name)
			if qerr != nil {
				return qerr
			}
			id, err = existing.ID, nil
		}
		if err != nil {
			return err
		}
		if _, err := c.cache.RekeyCategory(ctx, w.LocalID, id); err != nil {
			logger.ErrorWithFields("pending: failed to persist local cache", err, map[string]interface{}{"category_id": id})
		}
		c.ids.Record(ctx, w.LocalID, id)
		return nil

	default:
		return fmt.Errorf("unknown pending write kind %q", w.Kind)
	}
}

// ========================================
// helpers
// ========================================

// writeBook áp patch lên cache rồi ghi remote; book temp không gửi remote
func (c *Coordinator) writeBook(ctx context.Context, res *model.MutationResult, id string, patch model.BookPatch) (before, after model.Book, err error) {
	now := c.now()
	before, after, ok, perr := c.cache.UpdateBook(ctx, id, func(b *model.Book) {
		patch.Apply(b)
		b.UpdatedAt = now
	})
	if !ok {
		return model.Book{}, model.Book{}, model.ErrBookNotFound
	}
	if perr != nil {
		logger.ErrorWithFields("coordinator: failed to persist local cache", perr, map[string]interface{}{"book_id": id})
	}
	res.ID = id
	res.Transition(model.StateLocalApplied)

	if model.IsTemporary(id) {
		// create đang chờ sẽ gửi state mới nhất
		res.Remote = model.RemoteSkipped
		return before, after, nil
	}

	w := PendingWrite{Kind: PendingUpdateBook, TargetID: id, Patch: &patch}
	if c.pending != nil {
		// write cũ cho book này chưa flush: ghi trực tiếp sẽ bị nó đè lên
		queued, qerr := c.pending.EnqueueBehind(ctx, w, c.pendingFor(id))
		if qerr != nil {
			logger.ErrorWithFields("coordinator: failed to persist pending write", qerr, map[string]interface{}{"book_id": id})
		}
		if queued {
			res.Remote = model.RemoteQueued
			res.Queued = true
			return before, after, nil
		}
	}

	res.Transition(model.StateRemoteAttempted)
	if err := c.repo.UpdateBook(ctx, id, patch); err != nil {
		c.remoteFailed(ctx, res, err, w)
		return before, after, nil
	}
	res.Remote = model.RemoteAcked
	res.Transition(model.StateRemoteAcked)
	return before, after, nil
}

// remoteFailed ghi nhận PartialFailure và đưa write vào queue nếu đang bật
func (c *Coordinator) remoteFailed(ctx context.Context, res *model.MutationResult, err error, w PendingWrite) {
	res.Remote = model.RemoteFailed
	res.RemoteErr = err
	res.Transition(model.StateRemoteFailed)

	fields := map[string]interface{}{
		"op":        string(res.Op),
		"book_id":   firstNonEmpty(w.LocalID, w.TargetID),
		"transient": model.IsTransient(err),
	}
	logger.ErrorWithFields("coordinator: remote write failed, local cache kept", err, fields)

	if c.pending == nil {
		return
	}
	w.LastError = err.Error()
	if qerr := c.pending.Enqueue(ctx, w); qerr != nil {
		logger.Error("coordinator: failed to queue pending write", qerr)
		return
	}
	res.Queued = true
}

// pendingFor khớp các update/delete đang chờ của book id
func (c *Coordinator) pendingFor(id string) func(PendingWrite) bool {
	return func(w PendingWrite) bool {
		if w.Kind != PendingUpdateBook && w.Kind != PendingDeleteBook {
			return false
		}
		return c.ids.Resolve(w.TargetID) == id
	}
}

// supersedePending: book đã xóa trên store, write cũ hơn không còn ý nghĩa
func (c *Coordinator) supersedePending(ctx context.Context, id string) {
	if c.pending == nil {
		return
	}
	n, err := c.pending.Supersede(ctx, c.pendingFor(id))
	if err != nil {
		logger.ErrorWithFields("coordinator: failed to persist pending write", err, map[string]interface{}{"book_id": id})
	}
	if n > 0 {
		logger.Info("pending: writes superseded by delete", map[string]interface{}{"book_id": id, "superseded": n})
	}
}

// cascade áp rewrite lên categories của mọi book đang chứa name
func (c *Coordinator) cascade(ctx context.Context, name string, change *CategoryChange, rewrite func([]string) []string) {
	for _, book := range c.cache.Books() {
		if !book.HasCategory(name) {
			continue
		}
		cats := rewrite(book.Categories)
		primary := book.PrimaryCategory
		if !contains(cats, primary) {
			primary = model.PrimaryFor(cats, c.cfg.FallbackCategory)
		}

		res := &model.MutationResult{Op: model.OpUpdate}
		_, _, err := c.writeBook(ctx, res, book.ID, model.BookPatch{Categories: &cats, PrimaryCategory: &primary})
		if err != nil || res.Partial() {
			change.BooksFailed++
			continue
		}
		change.BooksUpdated++
	}
}

// ensureCategories tạo category còn thiếu (count 0), mỗi tên đúng một lần
// kể cả khi nhiều mutation chạy đồng thời
func (c *Coordinator) ensureCategories(ctx context.Context, names []string) {
	for _, name := range model.UniqueNames(names) {
		if c.isReserved(name) {
			continue
		}
		if _, err := c.ensureCategory(ctx, name); err != nil {
			logger.ErrorWithFields("coordinator: failed to ensure category", err, map[string]interface{}{"name": name})
		}
	}
}

func (c *Coordinator) ensureCategory(ctx context.Context, name string) (model.Category, error) {
	if existing, ok := c.cache.CategoryByName(name); ok {
		return existing, nil
	}

	v, err, _ := c.categoryFlight.Do(name, func() (interface{}, error) {
		if existing, ok := c.cache.CategoryByName(name); ok {
			return existing, nil
		}

		category := model.Category{Name: name, Count: 0, CreatedAt: c.now()}
		id, err := c.repo.CreateCategory(ctx, &category)
		switch {
		case err == nil:
			category.ID = id
		case errors.Is(err, model.ErrDuplicateCategory):
			// đã có trên store (tạo từ client khác) → adopt
			existing, qerr := c.findCategory(ctx, name)
			if qerr != nil {
				return nil, qerr
			}
			category = existing
		case model.IsTransient(err) && c.pending != nil:
			category.ID = model.TempIDPrefix + uuid.NewString()
			if qerr := c.pending.Enqueue(ctx, PendingWrite{
				Kind:      PendingCreateCategory,
				LocalID:   category.ID,
				LastError: err.Error(),
			}); qerr != nil {
				return nil, qerr
			}
		default:
			return nil, err
		}

		if perr := c.cache.PutCategory(ctx, category); perr != nil {
			logger.ErrorWithFields("coordinator: failed to persist local cache", perr, map[string]interface{}{"category_id": category.ID})
		}
		return category, nil
	})
	if err != nil {
		return model.Category{}, err
	}
	return v.(model.Category), nil
}

func (c *Coordinator) findCategory(ctx context.Context, name string) (model.Category, error) {
	found, err := c.repo.QueryCategories(ctx, model.CategoryQuery{Name: name})
	if err != nil {
		return model.Category{}, err
	}
	if len(found) == 0 {
		return model.Category{}, model.ErrCategoryNotFound
	}
	return found[0], nil
}

func (c *Coordinator) loadCategory(ctx context.Context, id string) (model.Category, error) {
	if category, ok := c.cache.Category(id); ok {
		return category, nil
	}
	category, err := c.repo.GetCategory(ctx, id)
	if err != nil {
		return model.Category{}, err
	}
	return *category, nil
}

func (c *Coordinator) dispatch(ctx context.Context, res *model.MutationResult, names []string) {
	names = model.UniqueNames(names)
	if len(names) == 0 {
		return
	}
	res.Recalc = names
	if err := c.dispatcher.Dispatch(ctx, names); err != nil {
		logger.ErrorWithFields("coordinator: failed to dispatch recalculation", err, map[string]interface{}{"names": names})
		return
	}
	res.Transition(model.StateRecalculationTriggered)
}

func (c *Coordinator) isReserved(name string) bool {
	return c.cfg.ReservedCategory != "" && strings.EqualFold(name, c.cfg.ReservedCategory)
}

func (c *Coordinator) withoutReserved(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !c.isReserved(n) {
			out = append(out, n)
		}
	}
	return out
}

func trimNames(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.TrimSpace(s))
	}
	return out
}

// sameSet so sánh hai danh sách tên như tập hợp
func sameSet(a, b []string) bool {
	ua, ub := model.UniqueNames(a), model.UniqueNames(b)
	if len(ua) != len(ub) {
		return false
	}
	for _, n := range ua {
		if !contains(ub, n) {
			return false
		}
	}
	return true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
