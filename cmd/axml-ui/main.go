package main

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log"
	"math"
	"os"
	"path/filepath"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	axml "github.com/cbegin/axml-go"
	"github.com/cbegin/axml-go/internal/config"
)

const (
	windowW    = 1000
	windowH    = 640
	minWindowW = 860
	minWindowH = 560

	textScale = 2
	charW     = 7 * textScale
	lineH     = 14 * textScale

	sliderH    = 36
	sliderPadX = 150
)

var (
	bgColor         = color.RGBA{192, 192, 192, 255}
	panelColor      = color.RGBA{192, 192, 192, 255}
	borderColor     = color.RGBA{128, 128, 128, 255}
	bevelLight      = color.RGBA{255, 255, 255, 255}
	bevelDarker     = color.RGBA{64, 64, 64, 255}
	sunkenBgColor   = color.RGBA{24, 24, 32, 255}
	sliderFillColor = color.RGBA{0, 0, 128, 255}
	waveColor       = color.RGBA{80, 200, 255, 220}
)

type renderResult struct {
	path string
	err  error
}

type game struct {
	player *axml.Player
	doc    *axml.Document
	path   string
	events <-chan axml.PlaybackEvent

	scopeImg *ebiten.Image
	specBins []float64

	// dragging is the slider under the mouse: -1 none, 0 master, i+1 track i.
	dragging  int
	tracks    []string
	rendering bool
	renderCh  chan renderResult

	status    string
	statusErr bool

	textCache map[string]*ebiten.Image
	viewW     int
	viewH     int
}

type uiLayout struct {
	header, mixer, scope, play, render, status image.Rectangle
}

func newGame(pl *axml.Player, doc *axml.Document, path string) *game {
	return &game{
		player:    pl,
		doc:       doc,
		path:      path,
		events:    pl.Watch(),
		dragging:  -1,
		tracks:    pl.TrackNames(),
		renderCh:  make(chan renderResult, 1),
		status:    "Ready",
		textCache: make(map[string]*ebiten.Image, 256),
		viewW:     windowW,
		viewH:     windowH,
	}
}

func (g *game) Update() error {
	g.pollEvents()
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		g.togglePlay()
	}
	g.handleMouse()
	return nil
}

func (g *game) Draw(screen *ebiten.Image) {
	screen.Fill(bgColor)
	l := g.layoutRects()

	g.drawPanel(screen, l.header)
	g.drawSunkenPanel(screen, l.mixer)
	g.drawDarkPanel(screen, l.scope)
	g.drawButton(screen, l.play, g.playLabel())
	g.drawButton(screen, l.render, g.renderLabel())
	g.drawSunkenPanel(screen, l.status)

	g.drawHeader(screen, l.header)
	g.drawMixer(screen, l.mixer)
	g.drawScope(screen, l.scope)
	msg := "Status: " + g.status
	if g.statusErr {
		msg = "Status: ERROR - " + g.status
	}
	g.drawText(screen, shortenEnd(msg, max(8, (l.status.Dx()-16)/charW)), l.status.Min.X+8, l.status.Min.Y+6)
}

func (g *game) Layout(outsideW, outsideH int) (int, int) {
	g.viewW = max(outsideW, minWindowW)
	g.viewH = max(outsideH, minWindowH)
	return g.viewW, g.viewH
}

func (g *game) layoutRects() uiLayout {
	const pad = 8
	w, h := g.viewW, g.viewH
	headerH := lineH*2 + 16
	statusH := lineH + 12
	buttonH := 40

	header := image.Rect(pad, pad, w-pad, pad+headerH)
	status := image.Rect(pad, h-pad-statusH, w-pad, h-pad)
	buttonsY := status.Min.Y - pad - buttonH
	play := image.Rect(pad, buttonsY, pad+160, buttonsY+buttonH)
	render := image.Rect(play.Max.X+pad, buttonsY, play.Max.X+pad+200, buttonsY+buttonH)

	bodyTop := header.Max.Y + pad
	bodyBottom := buttonsY - pad
	mixerW := w * 2 / 5
	return uiLayout{
		header: header,
		mixer:  image.Rect(pad, bodyTop, pad+mixerW, bodyBottom),
		scope:  image.Rect(pad*2+mixerW, bodyTop, w-pad, bodyBottom),
		play:   play,
		render: render,
		status: status,
	}
}

func (g *game) pollEvents() {
	for {
		select {
		case ev := <-g.events:
			if ev.Kind == axml.EventPlaybackEnded && !g.statusErr {
				g.setStatus("Playback ended")
			}
		case res := <-g.renderCh:
			g.rendering = false
			if res.err != nil {
				g.setError(res.err.Error())
			} else {
				g.setStatus("Saved " + res.path)
			}
		default:
			return
		}
	}
}

func (g *game) handleMouse() {
	mx, my := ebiten.CursorPosition()
	l := g.layoutRects()

	if inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft) {
		switch {
		case pointInRect(mx, my, l.play):
			g.togglePlay()
			return
		case pointInRect(mx, my, l.render):
			g.startRender()
			return
		case pointInRect(mx, my, l.mixer):
			g.dragging = g.sliderAt(my, l.mixer)
		}
	}
	if !ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft) {
		g.dragging = -1
	}
	if g.dragging >= 0 {
		g.setSliderFromMouse(g.dragging, mx, g.sliderRect(g.dragging, l.mixer))
	}
}

func (g *game) togglePlay() {
	if g.player.IsPlaying() {
		g.player.Stop()
		g.setStatus("Stopped")
		return
	}
	if err := g.player.Play(); err != nil {
		g.setError(err.Error())
		return
	}
	g.setStatus("Playing")
}

func (g *game) startRender() {
	if g.rendering {
		return
	}
	g.rendering = true
	g.setStatus("Rendering...")
	out := filepath.Join(filepath.Dir(g.path), axml.SuggestedFileName(g.doc.Metadata))
	go func() {
		wav, err := g.player.RenderWAV(context.Background())
		if err == nil {
			err = os.WriteFile(out, wav, 0o644)
		}
		g.renderCh <- renderResult{path: out, err: err}
	}()
}

func (g *game) playLabel() string {
	if g.player.IsPlaying() {
		return "Stop"
	}
	return "Play"
}

func (g *game) renderLabel() string {
	if g.rendering {
		return "Rendering"
	}
	return "Save WAV"
}

func (g *game) drawHeader(screen *ebiten.Image, rect image.Rectangle) {
	meta := g.doc.Metadata
	title := meta.Title
	if meta.Artist != "" {
		title += " - " + meta.Artist
	}
	info := fmt.Sprintf("%g bpm  %s  %s  %.1fs", meta.Tempo, meta.Key, meta.TimeSignature, g.player.Duration())
	maxChars := max(8, (rect.Dx()-16)/charW)
	g.drawText(screen, shortenEnd(title, maxChars), rect.Min.X+8, rect.Min.Y+8)
	g.drawText(screen, shortenEnd(info, maxChars), rect.Min.X+8, rect.Min.Y+8+lineH)
}

// sliderAt maps a y position in the mixer to a slider index, or -1.
func (g *game) sliderAt(my int, mixer image.Rectangle) int {
	i := (my - mixer.Min.Y - 8) / sliderH
	if i < 0 || i > len(g.tracks) {
		return -1
	}
	return i
}

func (g *game) sliderRect(i int, mixer image.Rectangle) image.Rectangle {
	y := mixer.Min.Y + 8 + i*sliderH
	return image.Rect(mixer.Min.X+8, y, mixer.Max.X-8, y+sliderH-4)
}

func (g *game) sliderValue(i int) float64 {
	if i == 0 {
		return g.player.MasterGain()
	}
	v, _ := g.player.TrackGain(g.tracks[i-1])
	return v
}

func (g *game) setSliderFromMouse(i, mx int, rect image.Rectangle) {
	trackX := rect.Min.X + sliderPadX
	trackW := rect.Dx() - sliderPadX - 16
	if trackW <= 0 {
		return
	}
	v := clamp(float64(mx-trackX)/float64(trackW), 0, 1)
	if i == 0 {
		g.player.SetMasterGain(v)
		return
	}
	g.player.SetTrackGain(g.tracks[i-1], v)
}

func (g *game) drawMixer(screen *ebiten.Image, rect image.Rectangle) {
	for i := 0; i <= len(g.tracks); i++ {
		sr := g.sliderRect(i, rect)
		if sr.Max.Y > rect.Max.Y {
			return
		}
		label := "Master"
		if i > 0 {
			label = g.tracks[i-1]
		}
		g.drawSlider(screen, sr, shortenEnd(label, (sliderPadX-8)/charW), g.sliderValue(i))
	}
}

func (g *game) drawSlider(screen *ebiten.Image, rect image.Rectangle, label string, value float64) {
	g.drawText(screen, label, rect.Min.X, rect.Min.Y+4)

	trackX := rect.Min.X + sliderPadX
	trackW := rect.Dx() - sliderPadX - 16
	trackY := rect.Min.Y + rect.Dy()/2 - 4
	if trackW < 20 {
		return
	}
	ebitenutil.DrawRect(screen, float64(trackX), float64(trackY), float64(trackW), 8, bevelDarker)
	ebitenutil.DrawRect(screen, float64(trackX), float64(trackY), float64(trackW-1), 1, borderColor)
	fillW := int(float64(trackW) * clamp(value, 0, 1))
	if fillW > 2 {
		ebitenutil.DrawRect(screen, float64(trackX+1), float64(trackY+1), float64(fillW-1), 6, sliderFillColor)
	}
	knobX := min(max(trackX+fillW-5, trackX-5), trackX+trackW-5)
	knob := image.Rect(knobX, trackY-4, knobX+10, trackY+12)
	ebitenutil.DrawRect(screen, float64(knob.Min.X), float64(knob.Min.Y), float64(knob.Dx()), float64(knob.Dy()), panelColor)
	drawBorder(screen, knob)
}

func (g *game) drawScope(screen *ebiten.Image, rect image.Rectangle) {
	inner := image.Rect(rect.Min.X+8, rect.Min.Y+8, rect.Max.X-8, rect.Max.Y-8)
	width, height := inner.Dx(), inner.Dy()
	if width <= 0 || height <= 0 {
		return
	}
	if g.scopeImg == nil || g.scopeImg.Bounds().Dx() != width || g.scopeImg.Bounds().Dy() != height {
		g.scopeImg = ebiten.NewImage(width, height)
	}
	g.scopeImg.Fill(color.RGBA{14, 16, 22, 255})

	waveH := int(float64(height) * 0.45)
	drawWaveform(g.scopeImg, g.player.TimeDomainData(), width, waveH)
	ebitenutil.DrawRect(g.scopeImg, 0, float64(waveH), float64(width), 1, color.RGBA{50, 54, 68, 180})
	g.drawSpectrumBars(g.scopeImg, g.player.FrequencyData(), width, height-waveH-1, waveH+1)

	op := &ebiten.DrawImageOptions{}
	op.GeoM.Translate(float64(inner.Min.X), float64(inner.Min.Y))
	screen.DrawImage(g.scopeImg, op)
}

// drawWaveform plots analyser bytes, where 128 is silence.
func drawWaveform(dst *ebiten.Image, wave []byte, width, height int) {
	if len(wave) < 2 || width < 2 || height < 4 {
		return
	}
	midY := height / 2
	ebitenutil.DrawRect(dst, 0, float64(midY), float64(width), 1, color.RGBA{40, 44, 58, 100})

	scale := float64(midY-2) / 128
	y := func(i int) float64 { return float64(midY) - (float64(wave[i])-128)*scale }
	prevY := y(0)
	for px := 1; px < width; px++ {
		si := min(px*len(wave)/width, len(wave)-1)
		cur := y(si)
		ebitenutil.DrawLine(dst, float64(px-1), prevY, float64(px), cur, waveColor)
		prevY = cur
	}
}

func (g *game) drawSpectrumBars(dst *ebiten.Image, bins []byte, width, height, yOffset int) {
	if len(bins) < 2 || width < 4 || height < 4 {
		return
	}
	numBars := min(max(width/4, 16), len(bins)-1)
	if len(g.specBins) != numBars {
		g.specBins = make([]float64, numBars)
	}

	// log-frequency columns, skipping DC
	logMax := math.Log(float64(len(bins)))
	for i := range numBars {
		lo := int(math.Exp(float64(i) / float64(numBars) * logMax))
		hi := max(int(math.Exp(float64(i+1)/float64(numBars)*logMax)), lo+1)
		hi = min(hi, len(bins))
		sum := 0
		for b := lo; b < hi; b++ {
			sum += int(bins[b])
		}
		norm := float64(sum) / float64(hi-lo) / 255
		prev := g.specBins[i]
		if norm > prev {
			g.specBins[i] = prev*0.3 + norm*0.7
		} else {
			g.specBins[i] = prev*0.85 + norm*0.15
		}
	}

	barW := float64(width) / float64(numBars)
	for i, v := range g.specBins {
		barH := max(v*float64(height-4), 1)
		x := float64(i) * barW
		y := float64(yOffset) + float64(height-2) - barH
		r, gr, b := spectrumColor(v)
		ebitenutil.DrawRect(dst, x+1, y, barW-1, barH, color.RGBA{r, gr, b, 220})
	}
}

func spectrumColor(v float64) (uint8, uint8, uint8) {
	if v < 0.33 {
		t := v / 0.33
		return uint8(30 + 20*t), uint8(80 + 120*t), uint8(200 + 55*t)
	}
	if v < 0.66 {
		t := (v - 0.33) / 0.33
		return uint8(50 + 140*t), uint8(200 + 30*t), uint8(255 - 100*t)
	}
	t := (v - 0.66) / 0.34
	return uint8(190 + 65*t), uint8(230 - 100*t), uint8(155 - 100*t)
}

func (g *game) setError(msg string) {
	g.status = msg
	g.statusErr = true
}

func (g *game) setStatus(msg string) {
	g.status = msg
	g.statusErr = false
}

func (g *game) drawPanel(screen *ebiten.Image, rect image.Rectangle) {
	fillRect(screen, rect, panelColor)
	drawBorder(screen, rect)
}

func (g *game) drawSunkenPanel(screen *ebiten.Image, rect image.Rectangle) {
	fillRect(screen, rect, sunkenBgColor)
	drawSunkenBorder(screen, rect)
}

func (g *game) drawDarkPanel(screen *ebiten.Image, rect image.Rectangle) {
	fillRect(screen, rect, color.Black)
	drawSunkenBorder(screen, rect)
}

func (g *game) drawButton(screen *ebiten.Image, rect image.Rectangle, label string) {
	g.drawPanel(screen, rect)
	x := rect.Min.X + (rect.Dx()-len([]rune(label))*charW)/2
	y := rect.Min.Y + (rect.Dy()-lineH)/2
	g.drawText(screen, label, x, y)
}

func fillRect(screen *ebiten.Image, rect image.Rectangle, c color.Color) {
	ebitenutil.DrawRect(screen, float64(rect.Min.X), float64(rect.Min.Y), float64(rect.Dx()), float64(rect.Dy()), c)
}

// drawBorder draws a raised bevel.
func drawBorder(screen *ebiten.Image, rect image.Rectangle) {
	x, y := float64(rect.Min.X), float64(rect.Min.Y)
	w, h := float64(rect.Dx()), float64(rect.Dy())
	ebitenutil.DrawRect(screen, x, y, w-1, 1, bevelLight)
	ebitenutil.DrawRect(screen, x, y+1, 1, h-2, bevelLight)
	ebitenutil.DrawRect(screen, x, y+h-1, w, 1, bevelDarker)
	ebitenutil.DrawRect(screen, x+w-1, y, 1, h, bevelDarker)
	ebitenutil.DrawRect(screen, x+1, y+h-2, w-3, 1, borderColor)
	ebitenutil.DrawRect(screen, x+w-2, y+1, 1, h-3, borderColor)
}

func drawSunkenBorder(screen *ebiten.Image, rect image.Rectangle) {
	x, y := float64(rect.Min.X), float64(rect.Min.Y)
	w, h := float64(rect.Dx()), float64(rect.Dy())
	ebitenutil.DrawRect(screen, x, y, w-1, 1, borderColor)
	ebitenutil.DrawRect(screen, x, y+1, 1, h-2, borderColor)
	ebitenutil.DrawRect(screen, x, y+h-1, w, 1, bevelLight)
	ebitenutil.DrawRect(screen, x+w-1, y, 1, h, bevelLight)
}

func (g *game) drawText(screen *ebiten.Image, msg string, x, y int) {
	if msg == "" {
		return
	}
	img := g.textCache[msg]
	if img == nil {
		img = ebiten.NewImage(max(1, len([]rune(msg))*7), 14)
		ebitenutil.DebugPrintAt(img, msg, 0, 0)
		if len(g.textCache) > 1000 {
			clear(g.textCache)
		}
		g.textCache[msg] = img
	}
	shadow := &ebiten.DrawImageOptions{}
	shadow.GeoM.Scale(textScale, textScale)
	shadow.GeoM.Translate(float64(x+2), float64(y+2))
	shadow.ColorScale.Scale(0, 0, 0, 1)
	screen.DrawImage(img, shadow)
	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(textScale, textScale)
	op.GeoM.Translate(float64(x), float64(y))
	screen.DrawImage(img, op)
}

func shortenEnd(s string, maxChars int) string {
	r := []rune(s)
	if len(r) <= maxChars {
		return s
	}
	if maxChars <= 3 {
		return string(r[:max(0, maxChars)])
	}
	return string(r[:maxChars-3]) + "..."
}

func clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}

func pointInRect(x, y int, rect image.Rectangle) bool {
	return image.Pt(x, y).In(rect)
}

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: axml-ui FILE")
	}
	path, err := filepath.Abs(os.Args[1])
	if err != nil {
		log.Fatalf("resolve %q: %v", os.Args[1], err)
	}
	text, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("read %q: %v", path, err)
	}

	cfg := config.Load()
	pl, err := axml.NewPlayer(
		axml.WithSampleRate(cfg.SampleRate),
		axml.WithMaxPatternDepth(cfg.MaxPatternDepth),
		axml.WithSampleTimeout(cfg.SampleTimeout),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer pl.Close()
	doc, err := pl.LoadText(string(text))
	if err != nil {
		log.Fatalf("%s: %v", path, err)
	}
	if err := pl.LoadSamples(context.Background()); err != nil {
		log.Printf("samples: %v", err)
	}

	ebiten.SetWindowSize(windowW, windowH)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowSizeLimits(minWindowW, minWindowH, -1, -1)
	ebiten.SetWindowTitle("axml - " + doc.Metadata.Title)
	if err := ebiten.RunGame(newGame(pl, doc, path)); err != nil {
		log.Fatal(err)
	}
}
