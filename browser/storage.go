package browser

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/harvest/session"
)

func toCookieParams(cookies []session.Cookie) []*proto.NetworkCookieParam {
	out := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		p := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: proto.NetworkCookieSameSite(c.SameSite),
		}
		if c.Expires > 0 {
			p.Expires = proto.TimeSinceEpoch(c.Expires)
		}
		out = append(out, p)
	}
	return out
}

func fromCookies(cookies []*proto.NetworkCookie) []session.Cookie {
	out := make([]session.Cookie, 0, len(cookies))
	for _, c := range cookies {
		expires := float64(c.Expires)
		if c.Session {
			expires = -1
		}
		out = append(out, session.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	return out
}

// localStorageScript returns a document script that restores the stored
// local storage of whichever origin the document belongs to.
func localStorageScript(state *session.State) string {
	byOrigin := make(map[string]map[string]string)
	for _, o := range state.Origins {
		if len(o.LocalStorage) == 0 {
			continue
		}
		byOrigin[o.Origin] = state.LocalStorage(o.Origin)
	}
	if len(byOrigin) == 0 {
		return ""
	}
	data, err := json.Marshal(byOrigin)
	if err != nil {
		return ""
	}
	return `(() => {
	const stored = ` + string(data) + `;
	const items = stored[window.location.origin];
	if (!items) return;
	try {
		for (const [k, v] of Object.entries(items)) {
			if (window.localStorage.getItem(k) === null) window.localStorage.setItem(k, v);
		}
	} catch (e) {}
})();`
}

const localStorageSnapshotJS = `() => {
	const items = [];
	try {
		for (let i = 0; i < window.localStorage.length; i++) {
			const k = window.localStorage.key(i);
			items.push({name: k, value: window.localStorage.getItem(k)});
		}
	} catch (e) {}
	return {origin: window.location.origin, items: items};
}`

// StorageState snapshots all cookies of the browser context plus the local
// storage of the page's current origin.
func (r *rodPage) StorageState(ctx context.Context) (*session.State, error) {
	cookies, err := r.browser.Context(ctx).GetCookies()
	if err != nil {
		return nil, err
	}
	state := &session.State{
		Cookies: fromCookies(cookies),
		Origins: []session.Origin{},
	}

	res, err := r.page.Context(ctx).Eval(localStorageSnapshotJS)
	if err != nil {
		// Local storage is best effort.
		return state, nil
	}
	origin := res.Value.Get("origin").Str()
	var items []session.StorageItem
	for _, it := range res.Value.Get("items").Arr() {
		items = append(items, session.StorageItem{
			Name:  it.Get("name").Str(),
			Value: it.Get("value").Str(),
		})
	}
	if origin != "" && !strings.EqualFold(origin, "null") && len(items) > 0 {
		state.Origins = append(state.Origins, session.Origin{Origin: origin, LocalStorage: items})
	}
	return state, nil
}
