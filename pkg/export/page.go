package export

import "html/template"

var indexTemplate = template.Must(template.New("preview").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
  body { margin: 0; background: #111827; color: #e5e7eb; font-family: ui-monospace, monospace; }
  header { padding: 8px 16px; border-bottom: 1px solid #374151; font-size: 13px; }
  #status { color: #9ca3af; margin-left: 12px; }
  #diagram { display: flex; justify-content: center; padding: 24px; overflow: auto; }
  #error { color: #f87171; padding: 0 16px; white-space: pre-wrap; }
</style>
<script src="https://cdn.jsdelivr.net/npm/mermaid@11/dist/mermaid.min.js"></script>
</head>
<body>
<header>{{.Title}}<span id="status">connecting…</span></header>
<div id="error"></div>
<div id="diagram"></div>
<script>
  mermaid.initialize({ startOnLoad: false, theme: "dark", securityLevel: "strict" });
  let shown = 0;
  const statusEl = document.getElementById("status");
  const target = document.getElementById("diagram");
  const errorEl = document.getElementById("error");

  async function show(update) {
    if (!update || !update.seq || update.seq <= shown) return;
    const seq = update.seq;
    try {
      const { svg } = await mermaid.render(update.render_id, update.code);
      if (seq < shown) return; // a newer diagram finished first
      shown = seq;
      target.innerHTML = svg;
      errorEl.textContent = "";
      statusEl.textContent = "rev " + seq;
    } catch (err) {
      errorEl.textContent = String(err);
    }
  }

  function connect() {
    const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/__preview__/ws");
    ws.onmessage = (ev) => show(JSON.parse(ev.data));
    ws.onopen = () => { statusEl.textContent = "live"; };
    ws.onclose = () => { statusEl.textContent = "disconnected, retrying…"; setTimeout(connect, 1000); };
  }

  fetch("/__preview__/diagram").then((r) => r.json()).then(show).finally(connect);
</script>
</body>
</html>
`))
