package mcpserver

// TemplateFormatContract describes how calibration templates and captured
// frames must be laid out for octave detection.
const TemplateFormatContract = `# Keyscan Template Format

Keyscan locates the twelve keys of one octave by comparing a template image
against a captured frame, then watches the pixel above or below each key for
colour changes.

## Template

- A PNG, JPEG or GIF strip cropped from a frame of the idle keyboard.
- Its width W spans exactly one octave, C to B. Key n (0 = C) owns the
  columns [n*W/12, (n+1)*W/12) using integer division.
- Only the template's first row is compared. Taller templates are allowed.

## Anchor

- The anchor is the frame pixel where the template's top-left corner sits.
- The template placed at the anchor must lie fully inside the frame,
  otherwise calibration fails with an out-of-bounds error.
- Each key is sampled 50 px above the anchor row (sharps: C#, D#, F#, G#, A#)
  or 50 px below it (naturals), at the centre of its column range.

## Matching

- A frame pixel matches a template pixel when the summed absolute RGB
  difference is below 100.
- A key is pressed when its sampled pixel differs from the calibration
  colour by at least the configured press threshold (default 100).

## Frames

- Frames are flat file names with a .png, .jpg, .jpeg or .gif extension.
- Names starting with a dot are ignored.
- Submit frames with the ` + "`" + `submit_frame` + "`" + ` tool as base64 or a data URI.
  A frame whose content did not change since it was last processed is skipped.

## Note codes

Transitions carry absolute MIDI note codes: semitone + 12*(octave+1), so C4
is 60 with the default base octave of 4. Names are two characters plus the
octave, for example "C  4" or "F# 4".
`
