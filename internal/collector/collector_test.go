package collector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/bankrot-cli/internal/browser"
	"github.com/sells-group/bankrot-cli/internal/model"
)

type fakeBrowser struct {
	pages map[int][]browser.Page // successive responses per page index
	calls map[int]int
	err   map[int]error
}

func (f *fakeBrowser) FetchCatalogPage(_ context.Context, pageIndex int) (browser.Page, error) {
	if f.calls == nil {
		f.calls = make(map[int]int)
	}
	n := f.calls[pageIndex]
	f.calls[pageIndex]++
	if err := f.err[pageIndex]; err != nil {
		return browser.Page{}, err
	}
	seq := f.pages[pageIndex]
	if len(seq) == 0 {
		return browser.Page{Kind: browser.KindZeroResult}, nil
	}
	if n >= len(seq) {
		n = len(seq) - 1
	}
	return seq[n], nil
}

func (f *fakeBrowser) FetchLotDetail(context.Context, string) (browser.Page, error) {
	return browser.Page{}, errors.New("not used")
}

func lotsPage(total int, ids ...string) browser.Page {
	var sb strings.Builder
	for _, id := range ids {
		fmt.Fprintf(&sb, `<a class="lot_num" href="/item?id=%s">%s</a>`, id, id)
	}
	if total > 0 {
		fmt.Fprintf(&sb, `<div class="pages"><ul><li><a>1</a></li><li><a>%d</a></li></ul></div>`, total)
	}
	return browser.Page{Kind: browser.KindNormal, Matched: true, Content: []byte(sb.String())}
}

func collect(t *testing.T, c *Collector) ([]string, []error) {
	t.Helper()
	var ids []string
	var errs []error
	for ref, err := range c.References(context.Background()) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		ids = append(ids, ref.ID)
	}
	return ids, errs
}

func TestReferences_DedupAndPagination(t *testing.T) {
	b := &fakeBrowser{pages: map[int][]browser.Page{
		1: {lotsPage(3, "1", "2", "2")},
		2: {lotsPage(0, "2", "3")},
		3: {lotsPage(0, "4")},
		4: {lotsPage(0, "5")}, // beyond total, never fetched
	}}
	c := New(b, nil, "https://tbankrot.ru", 10)

	ids, errs := collect(t, c)
	assert.Empty(t, errs)
	assert.Equal(t, []string{"1", "2", "3", "4"}, ids)
	assert.Zero(t, b.calls[4])
}

func TestReferences_Restartable(t *testing.T) {
	b := &fakeBrowser{pages: map[int][]browser.Page{1: {lotsPage(1, "1", "2")}}}
	c := New(b, nil, "https://tbankrot.ru", 5)

	first, _ := collect(t, c)
	second, _ := collect(t, c)
	assert.Equal(t, first, second)
}

func TestReferences_MaxPagesCapsTotal(t *testing.T) {
	b := &fakeBrowser{pages: map[int][]browser.Page{
		1: {lotsPage(50, "1")},
		2: {lotsPage(0, "2")},
		3: {lotsPage(0, "3")},
	}}
	ids, _ := collect(t, New(b, nil, "https://tbankrot.ru", 2))
	assert.Equal(t, []string{"1", "2"}, ids)
}

func TestReferences_ZeroResultStopsWalk(t *testing.T) {
	b := &fakeBrowser{pages: map[int][]browser.Page{1: {lotsPage(0, "1")}}}
	ids, errs := collect(t, New(b, nil, "https://tbankrot.ru", 10))
	assert.Equal(t, []string{"1"}, ids)
	assert.Empty(t, errs)
	assert.Equal(t, 1, b.calls[2])
	assert.Zero(t, b.calls[3])
}

func TestReferences_EmptyPagesYieldEmptyPageError(t *testing.T) {
	empty := browser.Page{Kind: browser.KindNormal, Content: []byte("<html>new layout</html>")}
	b := &fakeBrowser{pages: map[int][]browser.Page{
		1: {empty}, 2: {empty}, 3: {lotsPage(0, "9")},
	}}
	ids, errs := collect(t, New(b, nil, "https://tbankrot.ru", 3))
	assert.Equal(t, []string{"9"}, ids)
	require.Len(t, errs, 2)
	var epe *EmptyPageError
	require.ErrorAs(t, errs[0], &epe)
	assert.Equal(t, 1, epe.Page)
}

func TestReferences_FetchErrorCountsAsEmptyPage(t *testing.T) {
	b := &fakeBrowser{
		pages: map[int][]browser.Page{2: {lotsPage(0, "2")}},
		err:   map[int]error{1: &browser.FetchError{URL: "u", Err: errors.New("reset")}},
	}
	ids, errs := collect(t, New(b, nil, "https://tbankrot.ru", 2))
	assert.Equal(t, []string{"2"}, ids)
	require.Len(t, errs, 1)
	var epe *EmptyPageError
	require.ErrorAs(t, errs[0], &epe)
	var fe *browser.FetchError
	assert.ErrorAs(t, errs[0], &fe)
}

func TestReferences_StopsWhenConsumerBreaks(t *testing.T) {
	b := &fakeBrowser{pages: map[int][]browser.Page{
		1: {lotsPage(3, "1", "2")},
		2: {lotsPage(0, "3")},
	}}
	c := New(b, nil, "https://tbankrot.ru", 3)
	for ref, err := range c.References(context.Background()) {
		require.NoError(t, err)
		assert.Equal(t, "1", ref.ID)
		break
	}
	assert.Zero(t, b.calls[2])
}

func TestReferences_CaptchaResolvedThenRefetched(t *testing.T) {
	captcha := browser.Page{Kind: browser.KindCaptcha, URL: "https://tbankrot.ru/?page=1"}
	b := &fakeBrowser{pages: map[int][]browser.Page{1: {captcha, lotsPage(1, "1")}}}

	resolved := 0
	resolver := browser.ResolverFunc(func(context.Context, browser.Page) error {
		resolved++
		return nil
	})
	ids, errs := collect(t, New(b, resolver, "https://tbankrot.ru", 1))
	assert.Empty(t, errs)
	assert.Equal(t, []string{"1"}, ids)
	assert.Equal(t, 1, resolved)
	assert.Equal(t, 2, b.calls[1])
}

func TestReferences_CaptchaUnresolvedEndsSequence(t *testing.T) {
	captcha := browser.Page{Kind: browser.KindCaptcha}
	b := &fakeBrowser{pages: map[int][]browser.Page{1: {captcha}}}

	ids, errs := collect(t, New(b, nil, "https://tbankrot.ru", 5))
	assert.Empty(t, ids)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], browser.ErrCaptchaUnresolved)
	assert.Equal(t, 1, b.calls[1])
}

func TestReferences_CancelledContext(t *testing.T) {
	b := &fakeBrowser{pages: map[int][]browser.Page{1: {lotsPage(1, "1")}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var got []model.LotReference
	var gotErr error
	for ref, err := range New(b, nil, "https://tbankrot.ru", 5).References(ctx) {
		if err != nil {
			gotErr = err
			continue
		}
		got = append(got, ref)
	}
	assert.Empty(t, got)
	assert.ErrorIs(t, gotErr, context.Canceled)
}
