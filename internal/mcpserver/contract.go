package mcpserver

// ShowFormatContract describes the canonical show document format that
// LLM consumers should follow when creating or updating shows.
const ShowFormatContract = `# Cueflow Show Format Contract

Every show stored in Cueflow is a timeline document. The canonical
encoding is JSON; ` + "`" + `.json.gz` + "`" + ` and ` + "`" + `.mpk` + "`" + ` (MessagePack) encodings carry the
same structure.

## Structure

` + "```" + `json
{
  "name": "Opening Night",
  "loop": {"start": 4.0, "end": 12.0},
  "tracks": [
    {
      "id": "wash",
      "name": "front wash",
      "protocol": "dmx",
      "priority": 0,
      "target": {"universe": 0, "channel": 1, "width": 3},
      "events": [
        {
          "id": "fade-up",
          "start": 0,
          "duration": 4,
          "mode": "linear",
          "from": [0, 0, 0],
          "to": [255, 128, 64]
        }
      ]
    }
  ]
}
` + "```" + `

## Rules

1. **Times are seconds** (float64). Event ` + "`" + `start` + "`" + ` must be >= 0.
2. **Track and event ids are required** and unique within their scope.
3. **Protocols** are ` + "`" + `dmx` + "`" + `, ` + "`" + `midi` + "`" + ` or ` + "`" + `osc` + "`" + `. The ` + "`" + `target` + "`" + ` fields depend on
   the protocol: DMX needs ` + "`" + `universe` + "`" + `/` + "`" + `channel` + "`" + `/` + "`" + `width` + "`" + ` (channels 1..512),
   MIDI needs ` + "`" + `device` + "`" + ` and ` + "`" + `midi_channel` + "`" + ` (1..16), OSC needs an
   ` + "`" + `osc_address` + "`" + ` starting with ` + "`" + `/` + "`" + ` plus ` + "`" + `osc_host` + "`" + `/` + "`" + `osc_port` + "`" + `.
4. **Events on one track may not overlap** and must be ordered by start.
5. **Interpolation modes** are ` + "`" + `hold` + "`" + `, ` + "`" + `linear` + "`" + ` and ` + "`" + `eased` + "`" + `. ` + "`" + `from` + "`" + `/` + "`" + `to` + "`" + `
   value arrays must match the track's channel width.
6. **Zero-duration events** are triggers and need a ` + "`" + `trigger` + "`" + ` payload
   (MIDI note or OSC arguments) instead of ` + "`" + `from` + "`" + `/` + "`" + `to` + "`" + `.
7. **Values are 0..255** for DMX and MIDI continuous output. OSC output
   is normalised to 0..1 floats on the wire.
8. **Loop regions** must satisfy ` + "`" + `start < end` + "`" + ` and lie inside the
   timeline duration.

## Example trigger event

` + "```" + `json
{
  "id": "cue-hit",
  "start": 8.0,
  "duration": 0,
  "trigger": {"note": 60, "velocity": 100}
}
` + "```" + `
`
