// Package constant defines immutable application-level identifiers and configuration defaults.
package constant

// Extractor Function Identifiers - these constants define the required global function signatures for Lua extractor modules.
const (
	ExtractSeriesFn = "ExtractSeries"
)

// FetchScript is the expression template evaluated inside the remote browsing
// context to perform a same-origin network call. The script resolves to a
// JSON-encoded string of the response body, or "null" when the call fails.
// Placeholders: method, path, headers object literal, body literal.
const FetchScript = `(async () => {
	try {
		const res = await fetch(%q, { method: %q, headers: %s, body: %s });
		const text = await res.text();
		return JSON.stringify(JSON.parse(text));
	} catch (e) {
		return null;
	}
})()`

// RenderedProbeScript resolves to true once the client-side application has
// finished rendering the catalog page. The erc-series container only appears
// after hydration, which makes it a reliable completion marker.
const RenderedProbeScript = `!!document.querySelector('[class*="erc-series"], [data-t="series-hero"]')`

// ExtractSeriesScript reads a best-effort series record out of the rendered
// catalog page. It resolves to a JSON-encoded object with whatever fields the
// page exposes; missing fields are simply absent.
const ExtractSeriesScript = `(() => {
	const pick = (sel, attr) => {
		const el = document.querySelector(sel);
		if (!el) return undefined;
		return attr ? el.getAttribute(attr) : el.textContent.trim();
	};
	return JSON.stringify({
		title: pick('[data-t="series-hero"] h1') || pick('h1'),
		description: pick('[class*="expandable-section"] p') || pick('meta[name="description"]', 'content'),
		poster: pick('[data-t="series-hero"] img', 'src') || pick('meta[property="og:image"]', 'content'),
	});
})()`

// SearchRenderedProbeScript resolves to true once the search page has
// rendered at least one series link.
const SearchRenderedProbeScript = `!!document.querySelector('a[href*="/series/"]')`

// ExtractSearchScript reads the rendered search page's series links as a
// JSON-encoded array of {id, title} hits, deduplicated by id in page order.
const ExtractSearchScript = `(() => {
	const seen = {};
	const hits = [];
	for (const a of document.querySelectorAll('a[href*="/series/"]')) {
		const m = (a.getAttribute('href') || '').match(/\/series\/([A-Za-z0-9]+)/);
		if (!m || seen[m[1]]) continue;
		const title = a.textContent.trim();
		if (!title) continue;
		seen[m[1]] = true;
		hits.push({ id: m[1], title: title });
	}
	return JSON.stringify(hits);
})()`

// WatchRenderedProbeScript resolves to true once the watch page has rendered
// its episode heading.
const WatchRenderedProbeScript = `!!document.querySelector('[data-t="episode-title"], [class*="erc-watch"] h1, h1')`

// ExtractEpisodeScript reads a best-effort episode record out of the rendered
// watch page. Missing fields are simply absent.
const ExtractEpisodeScript = `(() => {
	const pick = (sel, attr) => {
		const el = document.querySelector(sel);
		if (!el) return undefined;
		return attr ? el.getAttribute(attr) : el.textContent.trim();
	};
	return JSON.stringify({
		title: pick('[data-t="episode-title"]') || pick('h1'),
		description: pick('[class*="expandable-section"] p') || pick('meta[name="description"]', 'content'),
		episode: pick('[data-t="episode-number"]'),
	});
})()`

// RelayScript is a one-shot Node.js program piped into the browser container
// when the automation endpoint is not reachable from this process's network.
// It opens the debugger websocket, writes a single command frame from argv,
// prints every received frame to stdout and exits once the frame bearing the
// command id arrives (or after the deadline).
// Placeholders: websocket URL, frame JSON, awaited id, timeout ms.
const RelayScript = `const WebSocket = require("ws");
const ws = new WebSocket(%q);
const frame = %s;
const want = %d;
const timer = setTimeout(() => process.exit(2), %d);
ws.on("open", () => ws.send(JSON.stringify(frame)));
ws.on("message", (data) => {
	process.stdout.write(data + "\n");
	try {
		if (JSON.parse(data).id === want) {
			clearTimeout(timer);
			ws.close();
			process.exit(0);
		}
	} catch (e) {}
});
ws.on("error", () => process.exit(1));`

// ExtractorTemplate is a Go text/template for scaffolding new Lua extractor files.
const ExtractorTemplate = `{{ $divider := repeat "-" (plus (max (len .Name) (len .Author) 3) 12) }}{{ $divider }}
-- @name    {{ .Name }}
-- @author  {{ .Author }}
-- @license MIT
{{ $divider }}


---@alias series { title: string, description: string|nil, poster: string|nil, year: number|nil }


--- Extracts a partial series record from rendered page HTML.
-- @param html string Rendered page markup
-- @return series
function {{ .ExtractSeriesFn }}(html)
	return {}
end

-- ex: ts=4 sw=4 et filetype=lua`
