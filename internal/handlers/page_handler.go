package handlers

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"

	"github.com/labelscan/portal/internal/models"
	"github.com/labelscan/portal/internal/observability"
	"github.com/labelscan/portal/internal/services"
)

// PageHandler renders the single page of the portal
type PageHandler struct {
	tmpl *template.Template
}

// NewPageHandler creates a new PageHandler
func NewPageHandler() *PageHandler {
	return &PageHandler{
		tmpl: template.Must(template.New("page").Funcs(template.FuncMap{
			// result images are inline data URLs built from backend bytes
			"safeURL": func(s string) template.URL { return template.URL(s) },
		}).Parse(pageTemplate)),
	}
}

type pageData struct {
	View       services.WorkspaceView
	Units      []models.Unit
	Review     bool
	Processing bool
	Completed  bool
	Failed     bool
	Elapsed    string
	CanAdd     bool
}

func newPageData(view services.WorkspaceView) pageData {
	state := view.Submission.State
	return pageData{
		View:       view,
		Units:      models.Units,
		Review:     state == models.StateConfirming,
		Processing: state.IsActive(),
		Completed:  state == models.StateCompleted && view.Results != nil,
		Failed:     state == models.StateFailed || state == models.StateTimedOut,
		Elapsed:    fmt.Sprintf("%.0f", view.Submission.ElapsedSeconds),
		CanAdd:     len(view.Images) < view.MaxImages,
	}
}

// Invalid reports whether the field is marked by the last submit attempt
func (d pageData) Invalid(field string) bool {
	return d.View.Errors[models.Field(field)]
}

// Index renders the login modal or the product form with the submission
// modal and results.
func (h *PageHandler) Index(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceOf(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := h.tmpl.Execute(&buf, newPageData(ws.View())); err != nil {
		observability.WithContext(r.Context()).Errorf("Failed to render page: %v", err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Label Verification</title>
    <style>
        * { box-sizing: border-box; }
        body {
            margin: 0;
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            background: #f4f5f7;
            color: #222;
        }
        header {
            display: flex;
            justify-content: space-between;
            align-items: center;
            padding: 16px 24px;
            background: #1f3a5f;
            color: #fff;
        }
        header form { margin: 0; }
        main { max-width: 760px; margin: 24px auto; padding: 0 16px; }
        .card { background: #fff; border-radius: 8px; padding: 24px; box-shadow: 0 1px 3px rgba(0,0,0,.12); }
        label { display: block; font-weight: 600; margin: 16px 0 6px; }
        input[type=text], input[type=password], select {
            width: 100%;
            padding: 8px 10px;
            border: 1px solid #c8ccd2;
            border-radius: 4px;
            font-size: 15px;
        }
        .row { display: flex; gap: 12px; }
        .row > div { flex: 1; }
        .invalid { border-color: #d93025 !important; background: #fff5f5; }
        .hint { color: #b06000; font-size: 13px; margin-top: 4px; }
        .error { color: #d93025; margin: 12px 0; }
        button {
            padding: 9px 18px;
            border: 0;
            border-radius: 4px;
            background: #1f3a5f;
            color: #fff;
            font-size: 15px;
            cursor: pointer;
        }
        button.secondary { background: #e3e6ea; color: #222; }
        button:disabled { opacity: .5; cursor: default; }
        .dropzone {
            border: 2px dashed #c8ccd2;
            border-radius: 6px;
            padding: 16px;
            text-align: center;
            color: #555;
        }
        .dropzone.dragging { border-color: #1f3a5f; background: #eef3fa; }
        .dropzone.invalid { border-color: #d93025; }
        .uploads { display: flex; flex-wrap: wrap; gap: 12px; margin-top: 8px; }
        .upload { width: 120px; text-align: center; font-size: 12px; }
        .upload img { width: 120px; height: 120px; object-fit: cover; border-radius: 4px; }
        .overlay {
            position: fixed;
            inset: 0;
            background: rgba(0,0,0,.45);
            display: flex;
            align-items: center;
            justify-content: center;
        }
        .modal { background: #fff; border-radius: 8px; padding: 24px; width: min(520px, 92vw); }
        .modal dl { display: grid; grid-template-columns: 160px 1fr; gap: 6px 12px; }
        .modal dt { font-weight: 600; }
        .actions { display: flex; justify-content: flex-end; gap: 8px; margin-top: 20px; }
        .checks td { padding: 6px 12px 6px 0; }
        .found { color: #188038; }
        .missing { color: #d93025; }
        .viewer { text-align: center; margin-top: 16px; }
        .viewer img { max-width: 100%; max-height: 420px; border-radius: 4px; }
    </style>
</head>
<body>
<header>
    <strong>Label Verification</strong>
    {{if .View.Session.Authenticated}}
    <form method="post" action="/logout">
        <span>{{.View.Session.User}}</span>
        <button class="secondary" type="submit">Log out</button>
    </form>
    {{end}}
</header>
<main>
{{if not .View.Session.Authenticated}}
<div class="overlay">
    <form class="modal" method="post" action="/login">
        <h2>Sign in</h2>
        <label for="username">Username</label>
        <input type="text" id="username" name="username" autocomplete="username">
        <label for="password">Password</label>
        <input type="password" id="password" name="password" autocomplete="current-password">
        {{with .View.LoginMessage}}<p class="error">{{.}}</p>{{end}}
        <div class="actions"><button type="submit">Log in</button></div>
    </form>
</div>
{{else}}
<div class="card">
    <form id="product" method="post" action="/product">
        <label for="brandName">Brand Name</label>
        <input type="text" id="brandName" name="brandName" value="{{.View.Form.BrandName}}"
               {{if $.Invalid "brandName"}}class="invalid"{{end}}>

        <label for="productClass">Product Class</label>
        <input type="text" id="productClass" name="productClass" value="{{.View.Form.ProductClass}}"
               {{if $.Invalid "productClass"}}class="invalid"{{end}}>

        <label for="alcoholContent">Alcohol Content (%)</label>
        <input type="text" id="alcoholContent" name="alcoholContent" inputmode="decimal" value="{{.View.Form.AlcoholContent}}"
               {{if $.Invalid "alcoholContent"}}class="invalid"{{end}}>
        <div class="hint" id="alcoholHint">{{.View.AlcoholHint}}</div>

        <div class="row">
            <div>
                <label for="netContents">Net Contents</label>
                <input type="text" id="netContents" name="netContents" inputmode="decimal" value="{{.View.Form.NetContents}}"
                       {{if $.Invalid "netContents"}}class="invalid"{{end}}>
            </div>
            <div>
                <label for="netContentsUnit">Unit</label>
                <select id="netContentsUnit" name="netContentsUnit">
                    {{range .Units}}<option value="{{.}}" {{if eq . $.View.Form.NetContentsUnit}}selected{{end}}>{{.}}</option>{{end}}
                </select>
            </div>
        </div>
    </form>

    <label>Label Images ({{len .View.Images}}/{{.View.MaxImages}})</label>
    <form id="dropzone" class="dropzone{{if $.Invalid "images"}} invalid{{end}}" method="post" action="/images"
          enctype="multipart/form-data" {{if .CanAdd}}data-enabled="true"{{end}}>
        <p>Drag and drop label images here, or choose files</p>
        <input type="file" name="images" accept="image/*" multiple {{if not .CanAdd}}disabled{{end}}>
        <button class="secondary" type="submit" {{if not .CanAdd}}disabled{{end}}>Add</button>
    </form>
    {{with .View.UploadMessage}}<p class="error">{{.}}</p>{{end}}
    <div class="uploads">
        {{range $i, $img := .View.Images}}
        <div class="upload">
            {{if $img.PreviewRef}}<img src="/previews/{{$img.PreviewRef}}" alt="{{$img.Name}}">{{end}}
            <div>{{$img.Name}}</div>
            <form method="post" action="/images/{{$i}}/remove"><button class="secondary" type="submit">Remove</button></form>
        </div>
        {{end}}
    </div>

    {{with .View.Feedback}}<p class="error">{{.}}</p>{{end}}
    <div class="actions">
        <button type="submit" form="product" {{if .Processing}}disabled{{end}}>Submit</button>
    </div>
</div>
{{end}}

{{if .Review}}
<div class="overlay">
    <div class="modal">
        <h2>Review submission</h2>
        {{with .View.Submission.Payload}}
        <dl>
            <dt>Brand Name</dt><dd>{{.BrandName}}</dd>
            <dt>Product Class</dt><dd>{{.ProductClass}}</dd>
            <dt>Alcohol Content</dt><dd>{{.AlcoholContent}}%</dd>
            <dt>Net Contents</dt><dd>{{.NetContents}} {{.NetContentsUnit}}</dd>
            <dt>Images</dt><dd>{{$.View.Submission.ImageCount}}</dd>
        </dl>
        {{end}}
        <div class="actions">
            <form method="post" action="/submission/dismiss"><button class="secondary" type="submit">Cancel</button></form>
            <form method="post" action="/submission/confirm"><button type="submit">Confirm</button></form>
        </div>
    </div>
</div>
{{end}}

{{if .Processing}}
<div class="overlay">
    <div class="modal">
        <h2>Processing</h2>
        <p>Verifying your label. Elapsed: <span id="elapsed">{{.Elapsed}}</span>s</p>
    </div>
</div>
{{end}}

{{if .Failed}}
<div class="overlay">
    <div class="modal">
        <h2>Submission failed</h2>
        <p class="error">{{.View.Submission.Message}}</p>
        <div class="actions">
            <form method="post" action="/submission/dismiss"><button type="submit">Close</button></form>
        </div>
    </div>
</div>
{{end}}

{{if .Completed}}
{{with .View.Results}}
<div class="overlay">
    <div class="modal">
        <h2>Results</h2>
        <table class="checks">
            {{range .Checks}}
            <tr><td>{{.Label}}</td><td class="{{if .Passed}}found{{else}}missing{{end}}">{{.Status}}</td></tr>
            {{end}}
        </table>
        {{if .Image}}
        <div class="viewer">
            <img src="{{.Image.DataURL | safeURL}}" alt="Label image {{.Pos}}">
            {{if gt .Total 1}}
            <div class="actions">
                <form method="post" action="/results/prev"><button class="secondary" type="submit">&larr;</button></form>
                <span>{{.Pos}} / {{.Total}}</span>
                <form method="post" action="/results/next"><button class="secondary" type="submit">&rarr;</button></form>
            </div>
            {{end}}
        </div>
        {{end}}
        <div class="actions">
            <form method="post" action="/submission/dismiss"><button type="submit">Done</button></form>
        </div>
    </div>
</div>
{{end}}
{{end}}

<script>
(function () {
    function edit(field, input) {
        fetch('/product/field', {
            method: 'POST',
            headers: {'Content-Type': 'application/json', 'Accept': 'application/json'},
            body: JSON.stringify({field: field, value: input.value})
        }).then(function (r) { return r.json(); }).then(function (resp) {
            if (!resp.accepted) { input.value = resp.value; }
            input.classList.remove('invalid');
            if (field === 'alcoholContent') {
                document.getElementById('alcoholHint').textContent = resp.hint || '';
            }
        });
    }
    ['brandName', 'productClass', 'alcoholContent', 'netContents', 'netContentsUnit'].forEach(function (id) {
        var el = document.getElementById(id);
        if (el) { el.addEventListener(el.tagName === 'SELECT' ? 'change' : 'input', function () { edit(id, el); }); }
    });

    var zone = document.getElementById('dropzone');
    if (zone && zone.dataset.enabled) {
        var depth = 0;
        zone.addEventListener('dragenter', function (e) {
            e.preventDefault();
            depth++;
            zone.classList.add('dragging');
        });
        zone.addEventListener('dragover', function (e) { e.preventDefault(); });
        zone.addEventListener('dragleave', function () {
            if (--depth <= 0) { depth = 0; zone.classList.remove('dragging'); }
        });
        zone.addEventListener('drop', function (e) {
            e.preventDefault();
            depth = 0;
            zone.classList.remove('dragging');
            var files = e.dataTransfer.files;
            if (!files || !files.length) { return; }
            var data = new FormData();
            for (var i = 0; i < files.length; i++) { data.append('images', files[i]); }
            fetch('/images', {method: 'POST', headers: {'Accept': 'application/json'}, body: data}).then(function () { location.reload(); });
        });
    }

    var elapsed = document.getElementById('elapsed');
    if (!elapsed) { return; }
    var proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
    var sock = new WebSocket(proto + location.host + '/ws/submission');
    sock.onmessage = function (ev) {
        var msg = JSON.parse(ev.data);
        if (msg.type !== 'submission' || !msg.payload) { return; }
        var s = msg.payload;
        if (s.state === 'submitting' || s.state === 'polling') {
            elapsed.textContent = Math.round(s.elapsedSeconds || 0);
        } else {
            sock.close();
            location.reload();
        }
    };
})();
</script>
</main>
</body>
</html>`
