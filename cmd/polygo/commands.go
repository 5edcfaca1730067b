package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"polygo/internal/auth"
	"polygo/internal/exchange"
	"polygo/internal/gamma"
	"polygo/internal/store"
	"polygo/pkg/types"
)

// bookDepth is how many levels per side `book` prints.
const bookDepth = 5

func (a *app) clob(withWallet bool) (*exchange.Client, error) {
	opts := exchange.Options{
		BaseURL:     a.cfg.API.CLOBBaseURL,
		ChainID:     a.cfg.Wallet.ChainID,
		Credentials: a.cfg.Credentials(),
		DryRun:      a.cfg.DryRun,
		Timeout:     a.cfg.HTTP.Timeout,
		PoolSize:    a.cfg.HTTP.PoolSize,
		Retry:       a.cfg.RetryPolicy(),
		UserAgent:   a.cfg.HTTP.UserAgent,
		Logger:      a.logger,
	}
	if withWallet {
		if err := a.cfg.RequireWallet(); err != nil {
			return nil, err
		}
		wallet, err := auth.NewPrivateKeyWallet(a.cfg.Wallet.PrivateKey)
		if err != nil {
			return nil, err
		}
		opts.Wallet = wallet
		opts.Funder = a.cfg.Wallet.FunderAddress
		opts.SignatureType = types.SignatureType(a.cfg.Wallet.SignatureType)
	}
	return exchange.NewClient(opts)
}

// authenticated returns a client with L2 credentials from config, the store,
// or a fresh derivation, in that order.
func (a *app) authenticated(ctx context.Context) (*exchange.Client, error) {
	c, err := a.clob(true)
	if err != nil {
		return nil, err
	}
	if c.HasL2Credentials() {
		return c, nil
	}

	st, err := store.Open(a.cfg.Store.DataDir)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	saved, err := st.LoadCredentials(c.ChainID(), c.Address())
	if err != nil {
		return nil, err
	}
	if saved != nil {
		c.SetCredentials(*saved)
		return c, nil
	}

	creds, err := c.CreateOrDeriveAPIKey(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("obtain api key: %w", err)
	}
	if err := st.SaveCredentials(c.ChainID(), c.Address(), creds); err != nil {
		a.logger.Warn("could not persist credentials", "error", err)
	}
	return c, nil
}

func (a *app) ping(ctx context.Context, _ []string) error {
	c, err := a.clob(false)
	if err != nil {
		return err
	}
	latency, err := c.Ping(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s %s\n", a.au.Green("ok"), a.au.Bold(latency.Round(1e6)))
	return nil
}

func (a *app) book(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: book <token-id>")
	}
	c, err := a.clob(false)
	if err != nil {
		return err
	}
	book, err := c.OrderBook(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "%s %s (tick %s)\n", a.au.Bold("market"), book.Market, book.TickSize)
	// the API lists both sides worst first
	asks := lastN(book.Asks, bookDepth)
	for i := range asks {
		lvl := asks[i]
		fmt.Fprintf(a.out, "  %s %8s x %s\n", a.au.Red("ask"), lvl.Price, lvl.Size)
	}
	bids := lastN(book.Bids, bookDepth)
	for i := len(bids) - 1; i >= 0; i-- {
		lvl := bids[i]
		fmt.Fprintf(a.out, "  %s %8s x %s\n", a.au.Green("bid"), lvl.Price, lvl.Size)
	}
	return nil
}

func lastN(levels []types.PriceLevel, n int) []types.PriceLevel {
	if len(levels) > n {
		return levels[len(levels)-n:]
	}
	return levels
}

func (a *app) gammaOptions() gamma.Options {
	return gamma.Options{
		BaseURL:   a.cfg.API.GammaBaseURL,
		Timeout:   a.cfg.HTTP.Timeout,
		PoolSize:  a.cfg.HTTP.PoolSize,
		Retry:     a.cfg.RetryPolicy(),
		UserAgent: a.cfg.HTTP.UserAgent,
		Logger:    a.logger,
	}
}

func (a *app) markets(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("markets", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "markets to fetch")
	slug := fs.String("slug", "", "fetch a single market by slug")
	if err := fs.Parse(args); err != nil {
		return err
	}

	g, err := gamma.NewClient(a.gammaOptions())
	if err != nil {
		return err
	}

	var list []gamma.Market
	if *slug != "" {
		m, err := g.MarketBySlug(ctx, *slug)
		if err != nil {
			return err
		}
		list = []gamma.Market{*m}
	} else {
		f := gamma.Open()
		f.Limit = *limit
		f.Order = "volume24hr"
		asc := false
		f.Ascending = &asc
		if list, err = g.Markets(ctx, f); err != nil {
			return err
		}
	}

	for _, m := range list {
		status := a.au.Green("open")
		if !m.Tradable() {
			status = a.au.Yellow("closed")
		}
		ids, _ := m.TokenIDs()
		fmt.Fprintf(a.out, "%s %s\n  slug=%s tick=%s neg_risk=%t tokens=%s\n",
			status, a.au.Bold(m.Question), m.Slug, m.TickSize(), m.NegRisk, strings.Join(ids, ","))
	}
	return nil
}

func (a *app) watch(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: watch <token-id>...")
	}
	feed := exchange.NewMarketFeed(a.cfg.API.WSMarketURL, a.logger)
	if err := feed.Subscribe(args); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- feed.Run(ctx) }()

	for msg := range feed.Messages() {
		fmt.Fprintf(a.out, "%s %s\n", a.au.Cyan(msg.EventType), msg.Data)
	}
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (a *app) deriveKey(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("derive-key", flag.ContinueOnError)
	create := fs.Bool("create", false, "create a new key instead of deriving the existing one")
	nonce := fs.Uint("nonce", 0, "ClobAuth nonce")
	if err := fs.Parse(args); err != nil {
		return err
	}

	c, err := a.clob(true)
	if err != nil {
		return err
	}
	var creds auth.Credentials
	if *create {
		creds, err = c.CreateAPIKey(ctx, uint32(*nonce))
	} else {
		creds, err = c.DeriveAPIKey(ctx, uint32(*nonce))
	}
	if err != nil {
		return err
	}

	st, err := store.Open(a.cfg.Store.DataDir)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.SaveCredentials(c.ChainID(), c.Address(), creds); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "%s api key %s for %s saved to %s\n",
		a.au.Green("✓"), a.au.Bold(creds.ApiKey), c.Address().Hex(), a.cfg.Store.DataDir)
	return nil
}

// orderFlags are shared by sign-order and post-order.
type orderFlags struct {
	fs        *flag.FlagSet
	token     *string
	price     *float64
	size      *float64
	side      *string
	tick      *string
	negRisk   *bool
	orderType *string
	postOnly  *bool
}

func newOrderFlags(name string) *orderFlags {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	return &orderFlags{
		fs:        fs,
		token:     fs.String("token", "", "token ID"),
		price:     fs.Float64("price", 0, "limit price in (0, 1]"),
		size:      fs.Float64("size", 0, "size in shares"),
		side:      fs.String("side", "BUY", "BUY or SELL"),
		tick:      fs.String("tick", "", "tick size; fetched when empty"),
		negRisk:   fs.Bool("neg-risk", false, "neg-risk market; fetched unless set"),
		orderType: fs.String("type", "GTC", "GTC, GTD, FOK or FAK"),
		postOnly:  fs.Bool("post-only", false, "reject the order if it would cross"),
	}
}

func (o *orderFlags) parse(args []string) (exchange.OrderArgs, exchange.CreateOptions, error) {
	if err := o.fs.Parse(args); err != nil {
		return exchange.OrderArgs{}, exchange.CreateOptions{}, err
	}
	orderArgs := exchange.OrderArgs{
		TokenID: *o.token,
		Price:   *o.price,
		Size:    *o.size,
		Side:    types.Side(strings.ToUpper(*o.side)),
	}
	opts := exchange.CreateOptions{TickSize: types.TickSize(*o.tick)}
	o.fs.Visit(func(f *flag.Flag) {
		if f.Name == "neg-risk" {
			opts.NegRisk = o.negRisk
		}
	})
	return orderArgs, opts, nil
}

func (a *app) signOrder(ctx context.Context, args []string) error {
	flags := newOrderFlags("sign-order")
	orderArgs, opts, err := flags.parse(args)
	if err != nil {
		return err
	}

	c, err := a.clob(true)
	if err != nil {
		return err
	}
	order, err := c.CreateOrder(ctx, orderArgs, opts)
	if err != nil {
		return err
	}
	signed, err := c.SignOrder(order)
	if err != nil {
		return err
	}
	return printJSON(a.out, signed)
}

func (a *app) postOrder(ctx context.Context, args []string) error {
	flags := newOrderFlags("post-order")
	orderArgs, opts, err := flags.parse(args)
	if err != nil {
		return err
	}

	c, err := a.authenticated(ctx)
	if err != nil {
		return err
	}
	a.logger.Info("placing order", "order", orderArgs.String(), "type", *flags.orderType)
	resp, err := c.PlaceOrder(ctx, orderArgs, types.OrderType(strings.ToUpper(*flags.orderType)), *flags.postOnly, opts)
	if err != nil {
		return err
	}

	if !resp.Success {
		fmt.Fprintf(a.out, "%s %s\n", a.au.Red("rejected"), resp.ErrorMsg)
		return nil
	}
	fmt.Fprintf(a.out, "%s order %s (%s)\n", a.au.Green("✓"), a.au.Bold(resp.OrderID), resp.Status)
	return nil
}

func (a *app) orders(ctx context.Context, _ []string) error {
	c, err := a.authenticated(ctx)
	if err != nil {
		return err
	}
	list, err := c.ListOrders(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(a.out, a.au.Yellow("no open orders"))
		return nil
	}
	for _, o := range list {
		side := a.au.Green(o.Side)
		if o.Side == string(types.SELL) {
			side = a.au.Red(o.Side)
		}
		fmt.Fprintf(a.out, "%s %s %s @ %s (%s/%s filled) %s\n",
			a.au.Bold(o.ID), side, o.AssetID, o.Price, o.SizeMatched, o.OriginalSize, o.Status)
	}
	return nil
}

func (a *app) cancel(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("cancel", flag.ContinueOnError)
	all := fs.Bool("all", false, "cancel every open order")
	market := fs.String("market", "", "cancel every order in this condition ID")
	if err := fs.Parse(args); err != nil {
		return err
	}

	c, err := a.authenticated(ctx)
	if err != nil {
		return err
	}

	var resp *types.CancelResponse
	switch {
	case *all:
		resp, err = c.CancelAll(ctx)
	case *market != "":
		resp, err = c.CancelMarketOrders(ctx, *market)
	case fs.NArg() == 1:
		resp, err = c.CancelOrder(ctx, fs.Arg(0))
	case fs.NArg() > 1:
		resp, err = c.CancelOrders(ctx, fs.Args())
	default:
		return errors.New("usage: cancel [-all | -market id | order-id...]")
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "%s %d cancelled\n", a.au.Green("✓"), len(resp.Canceled))
	for id, reason := range resp.NotCanceled {
		fmt.Fprintf(a.out, "%s %s: %s\n", a.au.Red("✗"), id, reason)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
