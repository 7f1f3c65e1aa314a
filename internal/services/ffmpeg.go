package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/reelcraft/reelcraft/internal/config"
)

// ---------------------------------------------------------------------------
// FFmpegService
// All rendering runs through ffmpeg/ffprobe subprocesses. Filter graphs
// are built by pure helper functions so they can be tested without
// invoking ffmpeg.
// ---------------------------------------------------------------------------

const (
	voiceSampleRate = 44100
	fadeSeconds     = 0.4
)

type FFmpegService struct {
	cfg     config.RenderConfig
	tempDir string
}

func NewFFmpegService(cfg config.RenderConfig, tempDir string) *FFmpegService {
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		panic(fmt.Sprintf("failed to create temp dir: %v", err))
	}

	return &FFmpegService{cfg: cfg, tempDir: tempDir}
}

func (s *FFmpegService) run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// ---------------------------------------------------------------------------
// Probing
// ---------------------------------------------------------------------------

// ProbeDuration returns a media file's duration in seconds.
func (s *FFmpegService) ProbeDuration(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	}

	cmd := exec.CommandContext(ctx, "ffprobe", args...)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration failed for %s: %w", path, err)
	}

	dur := gjson.GetBytes(output, "format.duration")
	if !dur.Exists() || dur.Float() <= 0 {
		return 0, fmt.Errorf("ffprobe returned no duration for %s", path)
	}

	return dur.Float(), nil
}

// ProbeDimensions returns the width and height of the first video
// stream in a file.
func (s *FFmpegService) ProbeDimensions(ctx context.Context, path string) (int, int, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "json",
		path,
	}

	cmd := exec.CommandContext(ctx, "ffprobe", args...)
	output, err := cmd.Output()
	if err != nil {
		return 0, 0, fmt.Errorf("ffprobe dimensions failed for %s: %w", path, err)
	}

	width := gjson.GetBytes(output, "streams.0.width").Int()
	height := gjson.GetBytes(output, "streams.0.height").Int()
	if width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("ffprobe returned no video stream for %s", path)
	}

	return int(width), int(height), nil
}

// ---------------------------------------------------------------------------
// Segment rendering — each scene becomes one silent video segment at
// the target resolution and frame rate
// ---------------------------------------------------------------------------

// RenderImageSegment turns a still image into a segment of the given
// duration with a pan/zoom motion effect. The effect cycles by scene
// index so consecutive scenes move differently.
func (s *FFmpegService) RenderImageSegment(ctx context.Context, imagePath, outputPath string, duration float64, sceneIndex int) error {
	vf := BuildZoompanFilter(sceneIndex, duration, s.cfg)

	log.Printf("[FFmpeg] Rendering image segment (duration=%.2fs, filter=%s)", duration, vf)

	args := []string{
		"-loop", "1",
		"-i", imagePath,
		"-vf", vf,
		"-t", fmt.Sprintf("%.3f", duration),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-an",
		"-y",
		outputPath,
	}

	if err := s.run(ctx, "ffmpeg", args...); err != nil {
		return fmt.Errorf("ffmpeg render image segment failed: %w", err)
	}
	return nil
}

// RenderVideoSegment warps a source clip to the given duration. The
// speed factor stretches or compresses playback; loops repeat the
// warped clip when it is still too short; the trailing -t trim cuts
// any excess from the end.
func (s *FFmpegService) RenderVideoSegment(ctx context.Context, videoPath, outputPath string, duration, speedFactor float64, loops int) error {
	srcW, srcH, err := s.ProbeDimensions(ctx, videoPath)
	if err != nil {
		return err
	}

	aspect := BuildAspectFilter(srcW, srcH, s.cfg)
	vf := fmt.Sprintf("%s,setpts=PTS*%.4f,fps=%d", aspect, speedFactor, s.cfg.FPS)

	log.Printf("[FFmpeg] Rendering video segment (duration=%.2fs, speed=%.3f, loops=%d)",
		duration, speedFactor, loops)

	args := []string{}
	if loops > 0 {
		args = append(args, "-stream_loop", fmt.Sprintf("%d", loops))
	}
	args = append(args,
		"-i", videoPath,
		"-vf", vf,
		"-t", fmt.Sprintf("%.3f", duration),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-an",
		"-y",
		outputPath,
	)

	if err := s.run(ctx, "ffmpeg", args...); err != nil {
		return fmt.Errorf("ffmpeg render video segment failed: %w", err)
	}
	return nil
}

// RenderTextSegment renders a title-card segment: the text centered on
// a dark plate with a drop shadow, fading in and out.
func (s *FFmpegService) RenderTextSegment(ctx context.Context, text, outputPath string, duration float64) error {
	vf := BuildTextFilter(text, duration)

	log.Printf("[FFmpeg] Rendering text segment (duration=%.2fs, text=%q)", duration, text)

	args := []string{
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=0x101020:s=%dx%d:r=%d:d=%.3f",
			s.cfg.Width, s.cfg.Height, s.cfg.FPS, duration),
		"-vf", vf,
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-an",
		"-y",
		outputPath,
	}

	if err := s.run(ctx, "ffmpeg", args...); err != nil {
		return fmt.Errorf("ffmpeg render text segment failed: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Assembly
// ---------------------------------------------------------------------------

// ConcatWithTransitions joins segments with crossfades. durations must
// hold each segment's rendered length; the xfade offsets are derived
// from them.
func (s *FFmpegService) ConcatWithTransitions(ctx context.Context, segmentPaths []string, durations []float64, outputPath string) error {
	if len(segmentPaths) == 0 {
		return fmt.Errorf("no segments to concatenate")
	}
	if len(segmentPaths) != len(durations) {
		return fmt.Errorf("segment/duration count mismatch: %d vs %d", len(segmentPaths), len(durations))
	}

	if len(segmentPaths) == 1 {
		return copyFile(segmentPaths[0], outputPath)
	}

	graph := BuildXfadeGraph(durations, s.cfg)

	args := []string{}
	for _, p := range segmentPaths {
		args = append(args, "-i", p)
	}
	args = append(args,
		"-filter_complex", graph,
		"-map", "[vout]",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-r", fmt.Sprintf("%d", s.cfg.FPS),
		"-y",
		outputPath,
	)

	log.Printf("[FFmpeg] Concatenating %d segments with transitions", len(segmentPaths))

	if err := s.run(ctx, "ffmpeg", args...); err != nil {
		return fmt.Errorf("ffmpeg xfade concat failed: %w", err)
	}
	return nil
}

// ConcatSegments joins segments back to back with the concat demuxer.
// Used when transitions are disabled; no re-encoding.
func (s *FFmpegService) ConcatSegments(ctx context.Context, segmentPaths []string, outputPath string) error {
	if len(segmentPaths) == 0 {
		return fmt.Errorf("no segments to concatenate")
	}

	listPath := filepath.Join(s.tempDir, "concat_list.txt")
	f, err := os.Create(listPath)
	if err != nil {
		return fmt.Errorf("failed to create concat list: %w", err)
	}
	for _, p := range segmentPaths {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		fmt.Fprintf(f, "file '%s'\n", abs)
	}
	f.Close()
	defer os.Remove(listPath)

	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-y",
		outputPath,
	}

	if err := s.run(ctx, "ffmpeg", args...); err != nil {
		return fmt.Errorf("ffmpeg concatenate failed: %w", err)
	}
	return nil
}

// VoiceEntry is one slot in the narration track, in scene order. An
// empty AudioPath contributes Duration seconds of silence.
type VoiceEntry struct {
	AudioPath string
	Duration  float64
}

// BuildVoiceTrack concatenates narration audio in scene order, filling
// silent slots with generated silence.
func (s *FFmpegService) BuildVoiceTrack(ctx context.Context, entries []VoiceEntry, outputPath string) error {
	if len(entries) == 0 {
		return fmt.Errorf("no voice entries")
	}

	args := []string{}
	var labels []string
	var filters []string

	for i, e := range entries {
		if e.AudioPath != "" {
			args = append(args, "-i", e.AudioPath)
		} else {
			args = append(args, "-f", "lavfi", "-t", fmt.Sprintf("%.3f", e.Duration),
				"-i", fmt.Sprintf("anullsrc=r=%d:cl=mono", voiceSampleRate))
		}
		label := fmt.Sprintf("[a%d]", i)
		filters = append(filters, fmt.Sprintf(
			"[%d:a]aformat=sample_rates=%d:channel_layouts=mono%s", i, voiceSampleRate, label))
		labels = append(labels, label)
	}

	graph := strings.Join(filters, ";") + ";" +
		strings.Join(labels, "") +
		fmt.Sprintf("concat=n=%d:v=0:a=1[aout]", len(entries))

	args = append(args,
		"-filter_complex", graph,
		"-map", "[aout]",
		"-c:a", "aac",
		"-b:a", "192k",
		"-y",
		outputPath,
	)

	log.Printf("[FFmpeg] Building voice track (%d entries)", len(entries))

	if err := s.run(ctx, "ffmpeg", args...); err != nil {
		return fmt.Errorf("ffmpeg voice track failed: %w", err)
	}
	return nil
}

// MixWithDucking mixes looping background music under the voice track.
// The music is compressed whenever the narration is speaking so the
// voice stays dominant.
func (s *FFmpegService) MixWithDucking(ctx context.Context, voicePath, musicPath, outputPath string) error {
	if musicPath == "" {
		return copyFile(voicePath, outputPath)
	}
	if _, err := os.Stat(musicPath); os.IsNotExist(err) {
		log.Printf("[FFmpeg] Background music file not found at %s, skipping", musicPath)
		return copyFile(voicePath, outputPath)
	}

	graph := BuildDuckingFilter(s.cfg)

	args := []string{
		"-i", voicePath,
		"-stream_loop", "-1",
		"-i", musicPath,
		"-filter_complex", graph,
		"-map", "[aout]",
		"-c:a", "aac",
		"-b:a", "192k",
		"-y",
		outputPath,
	}

	log.Printf("[FFmpeg] Mixing background music from %s", musicPath)

	if err := s.run(ctx, "ffmpeg", args...); err != nil {
		return fmt.Errorf("ffmpeg music mix failed: %w", err)
	}
	return nil
}

// Mux combines the assembled visual track and the final audio track
// into the output file. The visual stream is copied as-is.
func (s *FFmpegService) Mux(ctx context.Context, visualPath, audioPath, outputPath string) error {
	args := []string{
		"-i", visualPath,
		"-i", audioPath,
		"-map", "0:v",
		"-map", "1:a",
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		"-movflags", "+faststart",
		"-shortest",
		"-y",
		outputPath,
	}

	log.Printf("[FFmpeg] Muxing final video to %s", outputPath)

	if err := s.run(ctx, "ffmpeg", args...); err != nil {
		return fmt.Errorf("ffmpeg mux failed: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Filter builders (pure)
// ---------------------------------------------------------------------------

// BuildZoompanFilter builds the Ken Burns filter for an image scene.
// Even scenes push in, odd scenes pull back.
func BuildZoompanFilter(sceneIndex int, duration float64, cfg config.RenderConfig) string {
	totalFrames := int(duration*float64(cfg.FPS)) + 1

	var zExpr string
	if sceneIndex%2 == 0 {
		zExpr = fmt.Sprintf("1.0+0.3*on/%d", totalFrames)
	} else {
		zExpr = fmt.Sprintf("1.3-0.3*on/%d", totalFrames)
	}

	// Upscale first so zoompan has pixel headroom, then pan/zoom at the
	// target size.
	return fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,"+
			"zoompan=z='%s':x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)':d=%d:s=%dx%d:fps=%d",
		cfg.Width*2, cfg.Height*2, cfg.Width*2, cfg.Height*2,
		zExpr, totalFrames, cfg.Width, cfg.Height, cfg.FPS,
	)
}

// BuildAspectFilter normalizes a source clip to the target frame.
// Sources much wider than the target get a blurred, scaled copy of
// themselves as background with the full-width original centered over
// it; everything else is scale-cropped to fill.
func BuildAspectFilter(srcW, srcH int, cfg config.RenderConfig) string {
	srcAR := float64(srcW) / float64(srcH)
	targetAR := float64(cfg.Width) / float64(cfg.Height)

	if srcAR > targetAR*cfg.AspectTrigger {
		return fmt.Sprintf(
			"split[bg][fg];"+
				"[bg]scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,boxblur=20:5[bgb];"+
				"[fg]scale=%d:-2[fgs];"+
				"[bgb][fgs]overlay=(W-w)/2:(H-h)/2",
			cfg.Width, cfg.Height, cfg.Width, cfg.Height, cfg.Width,
		)
	}

	return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d",
		cfg.Width, cfg.Height, cfg.Width, cfg.Height)
}

// BuildTextFilter draws the title-card text with a drop shadow and
// symmetric fades.
func BuildTextFilter(text string, duration float64) string {
	fadeOutStart := duration - fadeSeconds
	if fadeOutStart < 0 {
		fadeOutStart = 0
	}

	return fmt.Sprintf(
		"drawtext=text='%s':fontcolor=white:fontsize=64:x=(w-text_w)/2:y=(h-text_h)/2:"+
			"shadowcolor=black:shadowx=3:shadowy=3,"+
			"fade=t=in:st=0:d=%.2f,fade=t=out:st=%.2f:d=%.2f",
		escapeDrawtext(text), fadeSeconds, fadeOutStart, fadeSeconds,
	)
}

// TransitionForIndex returns the transition style for the boundary
// after segment i, cycling through the configured styles.
func TransitionForIndex(i int, cfg config.RenderConfig) string {
	return cfg.TransitionCycle[i%len(cfg.TransitionCycle)]
}

// BuildXfadeGraph chains every segment with xfade transitions. Each
// transition starts one transition-length before the end of the
// accumulated stream, so segments rendered with the overlap extension
// keep the timeline at the sum of the resolved durations.
func BuildXfadeGraph(durations []float64, cfg config.RenderConfig) string {
	var sb strings.Builder

	prev := "[0:v]"
	offset := 0.0
	for i := 1; i < len(durations); i++ {
		offset += durations[i-1] - cfg.TransitionSeconds

		out := fmt.Sprintf("[x%d]", i)
		if i == len(durations)-1 {
			out = "[vout]"
		}

		fmt.Fprintf(&sb, "%s[%d:v]xfade=transition=%s:duration=%.3f:offset=%.3f%s",
			prev, i, TransitionForIndex(i-1, cfg), cfg.TransitionSeconds, offset, out)
		if i != len(durations)-1 {
			sb.WriteString(";")
		}
		prev = out
	}

	return sb.String()
}

// BuildDuckingFilter builds the music-under-voice mix graph. The voice
// is split so one copy drives the sidechain and the other reaches the
// final mix untouched.
func BuildDuckingFilter(cfg config.RenderConfig) string {
	return fmt.Sprintf(
		"[0:a]volume=%.2f,asplit=2[vmain][vside];"+
			"[1:a]volume=%.2f[m];"+
			"[m][vside]sidechaincompress=threshold=%.3f:ratio=%.0f:attack=%.0f:release=%.0f[mduck];"+
			"[vmain][mduck]amix=inputs=2:duration=first:dropout_transition=2[aout]",
		cfg.VoiceVolume, cfg.MusicVolume,
		cfg.Ducking.Threshold, cfg.Ducking.Ratio, cfg.Ducking.AttackMs, cfg.Ducking.ReleaseMs,
	)
}

// escapeDrawtext escapes characters that drawtext treats specially.
func escapeDrawtext(text string) string {
	text = strings.ReplaceAll(text, "\\", "\\\\")
	text = strings.ReplaceAll(text, "'", "\\'")
	text = strings.ReplaceAll(text, ":", "\\:")
	text = strings.ReplaceAll(text, "%", "\\%")
	return text
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", src, err)
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	return nil
}
