package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"IPOPulse/internal/domain/errs"
	"IPOPulse/internal/domain/models"
	"IPOPulse/internal/domain/service"
	"IPOPulse/internal/services/prediction"
	applogger "IPOPulse/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// runState carries stage outputs forward within one run.
type runState struct {
	date     string
	runID    string
	current  []models.ListingRecord
	upcoming []models.ListingRecord
	subs     map[string]*models.SubscriptionSnapshot
	quotes   []models.PremiumQuote
	math     map[string]models.SourcePrediction
	ai       map[string]models.SourcePrediction
}

func newRunState(date, runID string) *runState {
	return &runState{
		date:  date,
		runID: runID,
		subs:  map[string]*models.SubscriptionSnapshot{},
		math:  map[string]models.SourcePrediction{},
		ai:    map[string]models.SourcePrediction{},
	}
}

type stageOutcome struct {
	count   int
	failed  []models.ItemError
	message string
	err     error
}

type stageFunc func(ctx context.Context, st *runState) stageOutcome

func (o *Orchestrator) stage(name models.StageName) stageFunc {
	switch name {
	case models.StageCurrentListings:
		return o.fetchCurrentListings
	case models.StageUpcomingListings:
		return o.fetchUpcomingListings
	case models.StageSubscriptions:
		return o.fetchSubscriptions
	case models.StagePremiums:
		return o.fetchPremiums
	case models.StageMathPredictions:
		return o.runMath
	case models.StageAIPredictions:
		return o.runAI
	case models.StageFusion:
		return o.runFusion
	}
	return func(context.Context, *runState) stageOutcome {
		return stageOutcome{err: errs.Newf(errs.KindInvalid, "pipeline", "unknown stage %q", name)}
	}
}

func symbolKey(symbol string) string { return strings.ToUpper(strings.TrimSpace(symbol)) }

func listingsKey(date string, category models.ListingCategory) string {
	return string(category) + "/" + date
}

// fanOut calls fn for every listing with at most workers calls in flight.
// Item failures never cancel siblings; once ctx is done no new call starts.
func fanOut[T any](ctx context.Context, workers int, listings []models.ListingRecord,
	fn func(context.Context, models.ListingRecord) (T, error)) (map[string]T, []models.ItemError) {

	values := make([]T, len(listings))
	failures := make([]error, len(listings))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, l := range listings {
		if err := ctx.Err(); err != nil {
			failures[i] = err
			continue
		}
		g.Go(func() error {
			values[i], failures[i] = fn(ctx, l)
			return nil
		})
	}
	_ = g.Wait()

	results := make(map[string]T, len(listings))
	var failed []models.ItemError
	for i, l := range listings {
		if failures[i] != nil {
			failed = append(failed, models.ItemError{Symbol: l.Symbol, Error: failures[i].Error()})
			continue
		}
		results[symbolKey(l.Symbol)] = values[i]
	}
	return results, failed
}

func (o *Orchestrator) fetchListings(ctx context.Context, date string, category models.ListingCategory) ([]models.ListingRecord, error) {
	listings, err := o.acq.FetchListings(ctx, category, date)
	if err != nil {
		return nil, err
	}
	if listings == nil {
		listings = []models.ListingRecord{}
	}
	if err := o.store.Save(ctx, models.NamespaceListings, listingsKey(date, category), listings); err != nil {
		return listings, fmt.Errorf("persist %s listings: %w", category, err)
	}
	return listings, nil
}

func (o *Orchestrator) fetchCurrentListings(ctx context.Context, st *runState) stageOutcome {
	listings, err := o.fetchListings(ctx, st.date, models.CategoryCurrent)
	if err != nil {
		return stageOutcome{err: err}
	}
	st.current = listings
	return stageOutcome{count: len(listings), message: fmt.Sprintf("%d current listings", len(listings))}
}

func (o *Orchestrator) fetchUpcomingListings(ctx context.Context, st *runState) stageOutcome {
	listings, err := o.fetchListings(ctx, st.date, models.CategoryUpcoming)
	if err != nil {
		return stageOutcome{err: err}
	}
	st.upcoming = listings
	return stageOutcome{count: len(listings), message: fmt.Sprintf("%d upcoming listings", len(listings))}
}

func (o *Orchestrator) fetchSubscriptions(ctx context.Context, st *runState) stageOutcome {
	subs, failed := fanOut(ctx, o.workers, st.current,
		func(ctx context.Context, l models.ListingRecord) (*models.SubscriptionSnapshot, error) {
			snap, err := o.acq.FetchSubscription(ctx, l.Symbol)
			if err != nil {
				return nil, err
			}
			if snap == nil {
				return nil, errs.Newf(errs.KindNotFound, "subscription", "no snapshot for %s", l.Symbol)
			}
			if snap.Date == "" {
				snap.Date = st.date
			}
			key := st.date + "/" + symbolKey(l.Symbol)
			if err := o.store.Save(ctx, models.NamespaceSubscriptions, key, snap); err != nil {
				return nil, fmt.Errorf("persist subscription: %w", err)
			}
			return snap, nil
		})
	st.subs = subs

	out := stageOutcome{
		count:   len(subs),
		failed:  failed,
		message: fmt.Sprintf("%d/%d subscription snapshots", len(subs), len(st.current)),
	}
	if len(st.current) > 0 && len(subs) == 0 {
		out.err = errs.Newf(errs.KindExhausted, string(models.StageSubscriptions), "all %d subscription fetches failed", len(st.current))
	}
	return out
}

func (o *Orchestrator) fetchPremiums(ctx context.Context, st *runState) stageOutcome {
	quotes, err := o.acq.FetchPremiumQuotes(ctx)
	if err != nil {
		return stageOutcome{err: err}
	}
	if quotes == nil {
		quotes = []models.PremiumQuote{}
	}
	if err := o.store.Save(ctx, models.NamespacePremiums, st.date, quotes); err != nil {
		return stageOutcome{count: len(quotes), err: fmt.Errorf("persist premiums: %w", err)}
	}
	st.quotes = quotes

	matched := 0
	for _, l := range st.current {
		if len(prediction.MatchQuotes(l, quotes)) > 0 {
			matched++
		}
	}
	return stageOutcome{
		count:   len(quotes),
		message: fmt.Sprintf("%d quotes, %d/%d listings matched", len(quotes), matched, len(st.current)),
	}
}

func (o *Orchestrator) runMath(ctx context.Context, st *runState) stageOutcome {
	preds := make(map[string]models.SourcePrediction, len(st.current))
	withData := 0
	for _, l := range st.current {
		p := o.math.Predict(st.subs[symbolKey(l.Symbol)])
		if p.HasData {
			withData++
		}
		preds[symbolKey(l.Symbol)] = p
	}
	st.math = preds
	if err := o.store.Save(ctx, models.NamespaceMath, st.date, preds); err != nil {
		return stageOutcome{count: len(preds), err: fmt.Errorf("persist math predictions: %w", err)}
	}
	return stageOutcome{
		count:   len(preds),
		message: fmt.Sprintf("%d/%d listings with subscription data", withData, len(preds)),
	}
}

func (o *Orchestrator) runAI(ctx context.Context, st *runState) stageOutcome {
	var (
		mu      sync.Mutex
		neutral int
	)
	preds, failed := fanOut(ctx, o.workers, st.current,
		func(ctx context.Context, l models.ListingRecord) (models.SourcePrediction, error) {
			p, err := o.ai.Predict(ctx, service.ListingDetails{Listing: l, Subscription: st.subs[symbolKey(l.Symbol)]})
			switch {
			case errors.Is(err, errs.ErrInsufficientData):
				mu.Lock()
				neutral++
				mu.Unlock()
				return prediction.NeutralPrediction(models.SourceExternalAI), nil
			case err != nil:
				return models.SourcePrediction{}, err
			case p == nil:
				return prediction.NeutralPrediction(models.SourceExternalAI), nil
			}
			return *p, nil
		})
	st.ai = preds

	out := stageOutcome{
		count:   len(preds),
		failed:  failed,
		message: fmt.Sprintf("%d/%d ai predictions, %d neutral", len(preds)-neutral, len(st.current), neutral),
	}
	if err := o.store.Save(ctx, models.NamespaceAI, st.date, preds); err != nil {
		out.err = fmt.Errorf("persist ai predictions: %w", err)
		return out
	}
	if len(st.current) > 0 && len(preds) == 0 {
		out.err = errs.Newf(errs.KindExhausted, string(models.StageAIPredictions), "all %d ai calls failed", len(st.current))
	}
	return out
}

// runFusion combines the three sources per listing. Each prediction is
// written as one document; a symbol whose write fails is reported and
// never published.
func (o *Orchestrator) runFusion(ctx context.Context, st *runState) stageOutcome {
	if o.cache != nil {
		o.cache.InvalidateDate(ctx, st.date)
	}

	persisted := make([]models.ConsensusPrediction, 0, len(st.current))
	var failed []models.ItemError
	for _, l := range st.current {
		if err := ctx.Err(); err != nil {
			failed = append(failed, models.ItemError{Symbol: l.Symbol, Error: err.Error()})
			continue
		}
		sym := symbolKey(l.Symbol)
		consensus := o.premium.Aggregate(sym, prediction.MatchQuotes(l, st.quotes))
		pred := o.fusion.Combine(l, st.date, st.math[sym], o.premium.Predict(consensus), st.ai[sym])
		pred.Symbol = sym
		pred.RunID = st.runID

		if err := o.store.Save(ctx, models.NamespacePredictions, st.date+"/"+sym, pred); err != nil {
			failed = append(failed, models.ItemError{Symbol: l.Symbol, Error: err.Error()})
			continue
		}
		persisted = append(persisted, pred)
	}

	out := stageOutcome{
		count:   len(persisted),
		failed:  failed,
		message: fmt.Sprintf("%d/%d predictions persisted", len(persisted), len(st.current)),
	}
	if err := o.store.Save(ctx, models.NamespacePredictions, st.date, persisted); err != nil {
		out.err = fmt.Errorf("persist predictions: %w", err)
		return out
	}
	if len(st.current) > 0 && len(persisted) == 0 {
		out.err = errs.Newf(errs.KindExhausted, string(models.StageFusion), "no prediction could be persisted")
		return out
	}

	o.distribute(ctx, persisted)
	return out
}

// distribute hands persisted predictions to the cache, history and
// subscribers. Their failures are logged, never fail the stage.
func (o *Orchestrator) distribute(ctx context.Context, preds []models.ConsensusPrediction) {
	if o.history != nil && len(preds) > 0 {
		if err := o.history.Record(ctx, preds); err != nil {
			o.logger.Warn("record prediction history", applogger.Int("count", len(preds)), applogger.Error(err))
		}
	}
	for i := range preds {
		p := &preds[i]
		o.metrics.RecordPrediction(string(p.Recommendation))
		if o.cache != nil {
			o.cache.Put(ctx, p)
		}
		if o.publisher != nil {
			if err := o.publisher.Publish(ctx, p); err != nil {
				o.logger.Warn("publish prediction", applogger.String("symbol", p.Symbol), applogger.Error(err))
			}
		}
	}
}

// loadState rebuilds the inputs of stage from storage for a refresh.
func (o *Orchestrator) loadState(ctx context.Context, date string, stage models.StageName) (*runState, error) {
	st := newRunState(date, "")
	if stage == models.StageCurrentListings || stage == models.StageUpcomingListings {
		return st, nil
	}

	doc, err := o.store.Load(ctx, models.NamespaceListings, listingsKey(date, models.CategoryCurrent), 0)
	if err != nil {
		if errs.IsKind(err, errs.KindNotFound) {
			return nil, errs.Newf(errs.KindNotFound, "refresh",
				"no current listings stored for %s, refresh %s first", date, models.StageCurrentListings)
		}
		return nil, err
	}
	if err := doc.Decode(&st.current); err != nil {
		return nil, errs.E(errs.KindMalformed, "refresh", err)
	}

	switch stage {
	case models.StageMathPredictions, models.StageAIPredictions:
		for _, l := range st.current {
			key := date + "/" + symbolKey(l.Symbol)
			var snap models.SubscriptionSnapshot
			if o.loadOptional(ctx, models.NamespaceSubscriptions, key, &snap) {
				st.subs[symbolKey(l.Symbol)] = &snap
			}
		}
	case models.StageFusion:
		o.loadOptional(ctx, models.NamespacePremiums, date, &st.quotes)
		o.loadOptional(ctx, models.NamespaceMath, date, &st.math)
		o.loadOptional(ctx, models.NamespaceAI, date, &st.ai)
	}
	return st, nil
}

// loadOptional decodes a stored document into dest; absent or unreadable
// documents leave dest untouched so the stage degrades to its defaults.
func (o *Orchestrator) loadOptional(ctx context.Context, namespace, key string, dest interface{}) bool {
	doc, err := o.store.Load(ctx, namespace, key, 0)
	if err != nil {
		if !errs.IsKind(err, errs.KindNotFound) {
			o.logger.Warn("load stage input", applogger.String("namespace", namespace), applogger.String("key", key), applogger.Error(err))
		}
		return false
	}
	if err := doc.Decode(dest); err != nil {
		o.logger.Warn("decode stage input", applogger.String("namespace", namespace), applogger.String("key", key), applogger.Error(err))
		return false
	}
	return true
}
