package api

import "html/template"

// landingPage is the one-page upload form served at /.
var landingPage = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>img10 - Temporary Image Hosting</title>
<style>
  body { font-family: sans-serif; max-width: 600px; margin: 4rem auto; padding: 0 1rem; color: #222; }
  h1 { font-size: 1.6rem; }
  form { border: 2px dashed #bbb; border-radius: 8px; padding: 2rem; text-align: center; }
  button { margin-top: 1rem; padding: 0.5rem 1.5rem; }
  p.note { color: #666; font-size: 0.9rem; }
</style>
</head>
<body>
<h1>img10</h1>
<p>Temporary image hosting. Uploads expire after {{.ExpiryHours}} hours.</p>
<form action="/upload" method="post" enctype="multipart/form-data">
  <input type="file" name="file" accept="image/jpeg,image/png" required>
  <br>
  <button type="submit">Upload</button>
</form>
<p class="note">JPEG and PNG only, up to {{.MaxMiB}} MiB.</p>
</body>
</html>
`))
