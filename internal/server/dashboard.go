package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>muletrace</title>
    <meta name="description" content="Mule account hotspots and live interceptions">
    <link rel="stylesheet" href="https://unpkg.com/leaflet@1.9.4/dist/leaflet.css">
    <script src="https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"></script>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }

        :root {
            --bg: #09090b;
            --bg-subtle: #18181b;
            --border: #27272a;
            --text: #fafafa;
            --text-secondary: #a1a1aa;
            --accent: #22c55e;
            --red: #ef4444;
            --amber: #f59e0b;
        }

        body {
            font-family: -apple-system, 'Inter', sans-serif;
            background: var(--bg);
            color: var(--text);
            font-size: 14px;
            height: 100vh;
            display: grid;
            grid-template-columns: 1fr 380px;
            grid-template-rows: 56px 1fr;
        }

        header {
            grid-column: 1 / 3;
            display: flex;
            align-items: center;
            gap: 24px;
            padding: 0 20px;
            border-bottom: 1px solid var(--border);
        }
        header h1 { font-size: 16px; font-weight: 600; }
        .stat { color: var(--text-secondary); }
        .stat b { color: var(--text); font-family: monospace; }
        #conn { margin-left: auto; color: var(--text-secondary); }
        #conn.live { color: var(--accent); }

        #map { height: 100%; }

        aside {
            border-left: 1px solid var(--border);
            display: flex;
            flex-direction: column;
            overflow: hidden;
        }
        aside section { padding: 16px; border-bottom: 1px solid var(--border); }
        aside h2 { font-size: 12px; text-transform: uppercase; color: var(--text-secondary); margin-bottom: 8px; }
        input, button {
            background: var(--bg-subtle);
            color: var(--text);
            border: 1px solid var(--border);
            border-radius: 6px;
            padding: 6px 8px;
            font: inherit;
        }
        input { width: 100%; margin-bottom: 6px; }
        button { cursor: pointer; width: 100%; }
        button.danger { border-color: var(--red); color: var(--red); }
        #result { margin-top: 8px; min-height: 20px; }

        #feed { flex: 1; overflow-y: auto; padding: 8px 16px; list-style: none; }
        #feed li { padding: 8px 0; border-bottom: 1px solid var(--border); }
        #feed .time { color: var(--text-secondary); font-family: monospace; font-size: 12px; }
        .APPROVED { color: var(--accent); }
        .BLOCKED { color: var(--amber); }
        .INTERCEPTED, .account_frozen { color: var(--red); }
    </style>
</head>
<body>
    <header>
        <h1>muletrace</h1>
        <span class="stat">hotspots <b id="hotspot-count">0</b></span>
        <span class="stat">intercepted <b id="intercepted-count">0</b></span>
        <span class="stat">blocked <b id="blocked-count">0</b></span>
        <span id="conn">offline</span>
    </header>

    <div id="map"></div>

    <aside>
        <section>
            <h2>Trace account</h2>
            <input id="trace-id" placeholder="mule_id, e.g. MULE_RINGLEADER_01">
            <button onclick="trace()">Show trail and next location</button>
        </section>
        <section>
            <h2>Simulate withdrawal</h2>
            <input id="sim-id" value="MULE_RINGLEADER_01">
            <input id="sim-amount" value="80000" type="number">
            <button class="danger" onclick="simulate()">Simulate live cash-out</button>
            <div id="result"></div>
        </section>
        <ul id="feed"></ul>
    </aside>

    <script>
        const map = L.map('map').setView([28.6139, 77.2090], 11);
        L.tileLayer('https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png', {
            attribution: '&copy; OpenStreetMap contributors'
        }).addTo(map);

        const hotspotLayer = L.layerGroup().addTo(map);
        const traceLayer = L.layerGroup().addTo(map);
        const counts = { INTERCEPTED: 0, BLOCKED: 0 };

        // Safe fetch that returns null on error
        async function safeFetch(url, opts) {
            try {
                const r = await fetch(url, opts);
                if (!r.ok) return null;
                return await r.json();
            } catch (e) {
                return null;
            }
        }

        function esc(s) {
            const d = document.createElement('div');
            d.textContent = String(s);
            return d.innerHTML;
        }

        async function loadHotspots() {
            const spots = await safeFetch('/api/hotspots');
            if (!spots) return;
            hotspotLayer.clearLayers();
            spots.forEach(p => {
                L.circleMarker([p.lat, p.lng], {
                    radius: Math.min(4 + p.weight / 5, 24),
                    color: '#ef4444',
                    weight: 0,
                    fillOpacity: 0.35
                }).addTo(hotspotLayer);
            });
            document.getElementById('hotspot-count').textContent = spots.length;
        }

        async function trace() {
            const id = document.getElementById('trace-id').value.trim();
            if (!id) return;
            const trail = await safeFetch('/api/mule_history?mule_id=' + encodeURIComponent(id));
            traceLayer.clearLayers();
            if (!trail || trail.length === 0) return;

            const path = trail.map(p => [p.lat, p.lng]);
            L.polyline(path, { color: '#3b82f6' }).addTo(traceLayer);
            trail.forEach(p => {
                L.circleMarker([p.lat, p.lng], { radius: 5, color: '#3b82f6' })
                    .bindPopup(esc(p.time) + '<br>' + esc(p.amount) + ' at ' + esc(p.atm || '?'))
                    .addTo(traceLayer);
            });

            const last = trail[trail.length - 1];
            const pred = await safeFetch('/api/predict_next', {
                method: 'POST',
                headers: { 'Content-Type': 'application/json' },
                body: JSON.stringify({ mule_id: id, current_lat: last.lat, current_long: last.lng })
            });
            if (pred) {
                L.polyline([[last.lat, last.lng], [pred.predicted_lat, pred.predicted_long]],
                    { color: '#f59e0b', dashArray: '6 6' }).addTo(traceLayer);
                L.marker([pred.predicted_lat, pred.predicted_long])
                    .bindPopup(esc(pred.alert_message) + '<br>confidence: ' + esc(pred.confidence))
                    .addTo(traceLayer).openPopup();
            }
            map.fitBounds(L.latLngBounds(path).pad(0.3));
        }

        async function simulate() {
            const id = document.getElementById('sim-id').value.trim();
            const amount = parseInt(document.getElementById('sim-amount').value, 10);
            const center = map.getCenter();
            const res = await safeFetch('/api/process_transaction', {
                method: 'POST',
                headers: { 'Content-Type': 'application/json' },
                body: JSON.stringify({ mule_id: id, amount: amount, lat: center.lat, long: center.lng })
            });
            const el = document.getElementById('result');
            if (!res) {
                el.textContent = 'Failed to reach the backend.';
                return;
            }
            el.innerHTML = '<span class="' + esc(res.status) + '">' + esc(res.status) + '</span> ' + esc(res.message) +
                (res.alert_status ? '<br>alert: ' + esc(res.alert_status) : '');
        }

        function addFeed(ev) {
            const feed = document.getElementById('feed');
            const li = document.createElement('li');
            const label = ev.type === 'decision' ? ev.data.decision : ev.type;
            li.innerHTML = '<div class="time">' + esc(new Date(ev.timestamp).toLocaleTimeString()) + '</div>' +
                '<span class="' + esc(label) + '">' + esc(label) + '</span> ' +
                esc(ev.account_id || '') + (ev.amount ? ' ' + esc(ev.amount) : '');
            feed.prepend(li);
            while (feed.children.length > 200) feed.lastChild.remove();

            if (ev.type === 'decision' && counts[label] !== undefined) {
                counts[label]++;
                document.getElementById('intercepted-count').textContent = counts.INTERCEPTED;
                document.getElementById('blocked-count').textContent = counts.BLOCKED;
            }
            if (ev.type === 'ingest') loadHotspots();
        }

        function connect() {
            const proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
            const ws = new WebSocket(proto + location.host + '/ws');
            const conn = document.getElementById('conn');
            ws.onopen = () => { conn.textContent = 'live'; conn.className = 'live'; };
            ws.onmessage = (m) => { try { addFeed(JSON.parse(m.data)); } catch (e) {} };
            ws.onclose = () => {
                conn.textContent = 'offline';
                conn.className = '';
                setTimeout(connect, 3000);
            };
        }

        loadHotspots();
        connect();
        setInterval(loadHotspots, 30000);
    </script>
</body>
</html>`

// dashboardCSP relaxes the API-wide policy for the map page only.
const dashboardCSP = "default-src 'self'; " +
	"script-src 'self' 'unsafe-inline' https://unpkg.com; " +
	"style-src 'self' 'unsafe-inline' https://unpkg.com; " +
	"img-src 'self' data: https://*.tile.openstreetmap.org https://unpkg.com; " +
	"connect-src 'self' ws: wss:; frame-ancestors 'none'"

// dashboardHandler serves the operations map.
func dashboardHandler(c *gin.Context) {
	c.Header("Content-Security-Policy", dashboardCSP)
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, dashboardHTML)
}
