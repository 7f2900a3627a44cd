package web

import "net/http"

// dashboardHTML is the embedded monitoring page. It subscribes to the
// event stream and renders aggregate detection activity; raw content
// never reaches this page.
const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Lightkeeper Guardrails</title>
<style>
body { font-family: -apple-system, sans-serif; margin: 2rem; background: #101418; color: #e6e6e6; }
h1 { font-size: 1.3rem; }
#status { color: #7bd88f; }
#events { list-style: none; padding: 0; }
#events li { padding: .4rem .6rem; border-bottom: 1px solid #222a33; font-size: .85rem; }
#events li.blocked { color: #ff6b6b; }
</style>
</head>
<body>
<h1>Lightkeeper Guardrails <span id="status">connecting…</span></h1>
<ul id="events"></ul>
<script>
const proto = location.protocol === "https:" ? "wss" : "ws";
const ws = new WebSocket(proto + "://" + location.host + "/ws");
const list = document.getElementById("events");
ws.onopen = () => document.getElementById("status").textContent = "live";
ws.onclose = () => document.getElementById("status").textContent = "disconnected";
ws.onmessage = (m) => {
  const ev = JSON.parse(m.data);
  if (ev.type !== "violation_summary") return;
  const li = document.createElement("li");
  if (ev.data.blocked) li.className = "blocked";
  li.textContent = ev.timestamp + " [" + ev.data.context + "] " +
    ev.data.total_violations + " violation(s): " +
    (ev.data.categories || []).join(", ") +
    (ev.data.blocked ? " [BLOCKED]" : "");
  list.prepend(li);
  while (list.children.length > 200) list.removeChild(list.lastChild);
};
</script>
</body>
</html>`

// ServeDashboard serves the embedded dashboard page
func ServeDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Write([]byte(dashboardHTML))
}
