package webmonitor

const indexHTML = `
<!DOCTYPE html>
<html>
<head>
    <title>Tilapia Growth Monitor</title>
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <link rel="stylesheet" href="/assets/monitor.css">
    <style>
        body { margin: 0; font-family: sans-serif; background: #111; color: #eee; }
        .app { max-width: 1400px; margin: 0 auto; padding: 16px; }
        .header { display: flex; justify-content: space-between; align-items: center; margin-bottom: 12px; }
        .title { font-size: 22px; font-weight: bold; }
        .badge { padding: 4px 10px; border-radius: 10px; background: #444; font-size: 12px; }
        .badge.running { background: #1b7f3a; }
        .badge.stopped { background: #8a1f1f; }
        .grid { display: grid; grid-template-columns: 2fr 1fr; gap: 16px; }
        .panel { background: #1c1c1c; border-radius: 8px; padding: 12px; }
        .panel h2 { margin: 0 0 8px 0; font-size: 16px; }
        .summary { font-family: monospace; margin-top: 8px; min-height: 1.2em; }
        img.feed { width: 100%; height: auto; display: block; background: #000; }
        table { width: 100%; border-collapse: collapse; font-size: 14px; }
        td { padding: 4px 0; border-bottom: 1px solid #2a2a2a; }
        td.key { color: #999; width: 45%; }
        .controls { display: flex; gap: 8px; margin-top: 8px; flex-wrap: wrap; }
        button { padding: 6px 14px; border: 0; border-radius: 4px; background: #2d6cdf; color: #fff; cursor: pointer; }
        button.secondary { background: #555; }
        input { padding: 6px; border-radius: 4px; border: 1px solid #444; background: #222; color: #eee; }
        .message { margin-top: 8px; font-size: 13px; min-height: 1.2em; }
        .message.error { color: #f66; }
        .message.ok { color: #6f6; }
    </style>
</head>
<body>
    <div class="app">
        <div class="header">
            <div class="title">Tilapia Growth Monitor</div>
            <span class="badge" id="status-badge">Waiting for data...</span>
        </div>

        <div class="grid">
            <div class="panel">
                <h2>Live Feed</h2>
                <img class="feed" id="stream" src="/stream" alt="Live camera feed">
                <div class="summary" id="summary"></div>
                <div class="controls">
                    <button type="button" id="btn-start">Start camera</button>
                    <button type="button" id="btn-stop" class="secondary">Stop camera</button>
                </div>
                <div class="message" id="camera-message"></div>
            </div>

            <div>
                <div class="panel">
                    <h2>Last Snapshot</h2>
                    <img class="feed" id="snapshot" alt="Last saved snapshot">
                    <table>
                        <tr><td class="key">Stage</td><td id="stage">-</td></tr>
                        <tr><td class="key">Width (in)</td><td id="width">-</td></tr>
                        <tr><td class="key">Length (in)</td><td id="length">-</td></tr>
                        <tr><td class="key">Weight (g)</td><td id="weight">-</td></tr>
                        <tr><td class="key">Confidence</td><td id="confidence">-</td></tr>
                        <tr><td class="key">Saved at</td><td id="saved-at">-</td></tr>
                        <tr><td class="key">Publisher</td><td id="publisher">-</td></tr>
                    </table>
                </div>

                <div class="panel" style="margin-top:16px;">
                    <h2>Weight</h2>
                    <form id="weight-form" class="controls">
                        <input type="text" id="doc" name="doc" placeholder="DOC-..." autocomplete="off">
                        <button type="submit">Get weight</button>
                    </form>
                    <div class="message" id="weight-message"></div>
                </div>

                <div class="panel" style="margin-top:16px;">
                    <h2>Pipeline</h2>
                    <table>
                        <tr><td class="key">Frames processed</td><td id="frames">0</td></tr>
                        <tr><td class="key">Placeholder frames</td><td id="placeholders">0</td></tr>
                        <tr><td class="key">Detections kept</td><td id="kept">0</td></tr>
                        <tr><td class="key">Publishes</td><td id="publishes">0</td></tr>
                        <tr><td class="key">Latency (ms)</td><td id="latency">0</td></tr>
                        <tr><td class="key">MQTT</td><td id="mqtt">-</td></tr>
                    </table>
                </div>
            </div>
        </div>
    </div>

    <script>
        const $ = (id) => document.getElementById(id);
        let lastSnapshot = '';

        function fmt(v, digits) {
            return (v === null || v === undefined) ? '-' : Number(v).toFixed(digits);
        }

        function render(status) {
            const cam = status.camera || {};
            const badge = $('status-badge');
            badge.textContent = cam.running ? (cam.camera_open ? 'Running' : 'Running (no camera)') : 'Stopped';
            badge.className = 'badge ' + (cam.running ? 'running' : 'stopped');
            $('summary').textContent = cam.summary || '';

            const p = status.published || {};
            if (p.has_measurement) {
                $('stage').textContent = p.stage;
                $('width').textContent = fmt(p.width_in, 2);
                $('length').textContent = fmt(p.length_in, 2);
                $('confidence').textContent = fmt(p.confidence, 2);
                $('saved-at').textContent = new Date(p.timestamp).toLocaleTimeString();
                if (p.snapshot_id && p.snapshot_id !== lastSnapshot) {
                    lastSnapshot = p.snapshot_id;
                    $('snapshot').src = '/snapshot?v=' + encodeURIComponent(p.snapshot_id);
                }
            }
            $('weight').textContent = fmt(p.weight_g, 2);
            $('publisher').textContent = status.publisher || '-';

            const s = status.stats || {};
            $('frames').textContent = s.frames_processed || 0;
            $('placeholders').textContent = s.placeholder_frames || 0;
            $('kept').textContent = s.detections_kept || 0;
            $('publishes').textContent = s.publishes || 0;
            $('latency').textContent = s.process_latency_ms || 0;
            const m = status.mqtt;
            $('mqtt').textContent = m ? ((m.connected ? 'connected' : 'offline') + ', ' + m.published + ' sent') : 'disabled';
        }

        function connectStatus() {
            const source = new EventSource('/api/status/stream');
            source.onmessage = (ev) => {
                try { render(JSON.parse(ev.data)); } catch (e) { console.error(e); }
            };
            source.onerror = () => {
                $('status-badge').textContent = 'Reconnecting...';
                $('status-badge').className = 'badge';
            };
        }

        function showMessage(id, text, ok) {
            const el = $(id);
            el.textContent = text;
            el.className = 'message ' + (ok ? 'ok' : 'error');
        }

        async function post(url, body) {
            const opts = { method: 'POST' };
            if (body !== undefined) {
                opts.headers = { 'Content-Type': 'application/json' };
                opts.body = JSON.stringify(body);
            }
            const resp = await fetch(url, opts);
            const data = await resp.json().catch(() => ({}));
            return { ok: resp.ok, data };
        }

        $('btn-start').addEventListener('click', async () => {
            const r = await post('/api/camera/start');
            showMessage('camera-message', r.ok ? 'Camera started' : (r.data.error || 'Start failed'), r.ok);
        });
        $('btn-stop').addEventListener('click', async () => {
            const r = await post('/api/camera/stop');
            showMessage('camera-message', r.ok ? 'Camera stopped' : (r.data.error || 'Stop failed'), r.ok);
        });
        $('weight-form').addEventListener('submit', async (ev) => {
            ev.preventDefault();
            const doc = $('doc').value.trim();
            showMessage('weight-message', 'Requesting weight...', true);
            const r = await post('/api/weight', { doc });
            if (r.ok) {
                const res = r.data.result || {};
                showMessage('weight-message', 'Weight ' + fmt(res.weight, 2) + ' g (sample ' + (res.sample_no || '-') + ')', true);
                $('weight').textContent = fmt(res.weight, 2);
            } else {
                showMessage('weight-message', r.data.error || 'Weight request failed', false);
            }
        });

        fetch('/api/status').then((r) => r.json()).then(render).catch(() => {});
        connectStatus();
    </script>
</body>
</html>
`
