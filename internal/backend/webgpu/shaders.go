//go:build windows

package webgpu

// workgroupSize is the 1D workgroup size for element-parallel kernels.
const workgroupSize = 256

// matmulShader performs matrix multiplication: C = A @ B.
const matmulShader = `
@group(0) @binding(0) var<storage, read> a: array<f32>;
@group(0) @binding(1) var<storage, read> b: array<f32>;
@group(0) @binding(2) var<storage, read_write> result: array<f32>;

struct Params {
    M: u32,
    K: u32,
    N: u32,
}
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size(16, 16)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let row = global_id.y;
    let col = global_id.x;

    if (row >= params.M || col >= params.N) {
        return;
    }

    var sum: f32 = 0.0;
    for (var k: u32 = 0u; k < params.K; k = k + 1u) {
        sum = sum + a[row * params.K + k] * b[k * params.N + col];
    }
    result[row * params.N + col] = sum;
}
`

// conv1dShader computes one output element [n, co, l] per invocation.
const conv1dShader = `
@group(0) @binding(0) var<storage, read> input: array<f32>;
@group(0) @binding(1) var<storage, read> kernel: array<f32>;
@group(0) @binding(2) var<storage, read_write> result: array<f32>;

struct Params {
    total: u32,
    c_in: u32,
    length: u32,
    c_out: u32,
    k: u32,
    l_out: u32,
    stride: u32,
    padding: u32,
}
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.x;
    if (idx >= params.total) {
        return;
    }

    let l = idx % params.l_out;
    let co = (idx / params.l_out) % params.c_out;
    let n = idx / (params.l_out * params.c_out);

    var sum: f32 = 0.0;
    for (var ci: u32 = 0u; ci < params.c_in; ci = ci + 1u) {
        for (var kk: u32 = 0u; kk < params.k; kk = kk + 1u) {
            let pos = i32(l * params.stride + kk) - i32(params.padding);
            if (pos >= 0 && pos < i32(params.length)) {
                let in_idx = (n * params.c_in + ci) * params.length + u32(pos);
                let w_idx = (co * params.c_in + ci) * params.k + kk;
                sum = sum + input[in_idx] * kernel[w_idx];
            }
        }
    }
    result[idx] = sum;
}
`

// maxpool1dShader computes one pooled element per invocation.
const maxpool1dShader = `
@group(0) @binding(0) var<storage, read> input: array<f32>;
@group(0) @binding(1) var<storage, read_write> result: array<f32>;

struct Params {
    total: u32,
    length: u32,
    l_out: u32,
    k: u32,
    stride: u32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.x;
    if (idx >= params.total) {
        return;
    }

    let o = idx % params.l_out;
    let plane = idx / params.l_out;
    let base = plane * params.length + o * params.stride;

    var m: f32 = input[base];
    for (var kk: u32 = 1u; kk < params.k; kk = kk + 1u) {
        m = max(m, input[base + kk]);
    }
    result[idx] = m;
}
`
